package logger

import (
	"context"
	"fmt"
	"math"
	"strings"

	"feltfuzz/config"
	"feltfuzz/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerParams struct {
	fx.In
	Lc        fx.Lifecycle
	AppConfig *config.AppConfig
	Telemetry telemetry.Telemetry `optional:"true"`
}

// NewLogger builds the campaign logger. Every record carries the campaign
// id; with a telemetry log exporter configured, records are additionally
// mirrored into OpenTelemetry through a wrapping core.
func NewLogger(p LoggerParams) *zap.Logger {
	loggerCtx, cancel := context.WithCancel(context.Background())
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})

	level := zapcore.InfoLevel
	switch strings.ToLower(p.AppConfig.LogLevel) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if level > zapcore.InfoLevel {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	var opts []zap.Option
	if p.Telemetry != nil && p.Telemetry.GetLogger() != nil {
		opts = append(opts,
			zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return &telemetryCore{
					Core:  core,
					telem: p.Telemetry,
					ctx:   loggerCtx,
					attrsBase: []attribute.KeyValue{
						attribute.String("action.name", "fuzzing_log"),
						attribute.String("campaign.id", p.AppConfig.CampaignID),
						attribute.String("worker.id", p.AppConfig.WorkerID),
					},
				}
			}),
			zap.AddCaller(),
		)
	}

	lg, err := cfg.Build(opts...)
	if err != nil {
		// log failed to build, return a default one
		return zap.NewExample()
	}
	return lg.With(zap.String("campaign_id", p.AppConfig.CampaignID))
}

// telemetryCore tees every record written through the zap core into the
// OpenTelemetry log exporter, converting zap fields to attributes.
type telemetryCore struct {
	zapcore.Core
	telem     telemetry.Telemetry
	ctx       context.Context
	attrsBase []attribute.KeyValue
}

// With keeps child cores wrapped when callers derive loggers via .With.
func (t *telemetryCore) With(fields []zapcore.Field) zapcore.Core {
	return &telemetryCore{
		Core:      t.Core.With(fields),
		telem:     t.telem,
		ctx:       t.ctx,
		attrsBase: t.attrsBase,
	}
}

// Check registers this wrapper, not the inner core, on the checked entry.
func (t *telemetryCore) Check(ent zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if t.Enabled(ent.Level) {
		return checked.AddCore(ent, t)
	}
	return checked
}

func (t *telemetryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if err := t.Core.Write(ent, fields); err != nil {
		return err
	}
	if t.telem.GetLogger() == nil {
		return nil
	}

	rec := log.Record{}
	rec.SetTimestamp(ent.Time)
	rec.SetBody(log.StringValue(ent.Message))
	rec.SetSeverityText(ent.Level.String())

	for _, attr := range t.attrsBase {
		rec.AddAttributes(log.KeyValueFromAttribute(attr))
	}
	for _, f := range fields {
		rec.AddAttributes(log.KeyValueFromAttribute(fieldAttribute(f)))
	}

	t.telem.GetLogger().Emit(t.ctx, rec)
	return nil
}

// fieldAttribute maps one zap field onto an otel attribute. Signed and
// unsigned integers collapse onto int64; anything without a natural mapping
// is stringified.
func fieldAttribute(f zapcore.Field) attribute.KeyValue {
	switch f.Type {
	case zapcore.BoolType:
		return attribute.Bool(f.Key, f.Integer != 0)
	case zapcore.Float64Type:
		return attribute.Float64(f.Key, math.Float64frombits(uint64(f.Integer)))
	case zapcore.Float32Type:
		return attribute.Float64(f.Key, float64(math.Float32frombits(uint32(f.Integer))))
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type,
		zapcore.DurationType:
		return attribute.Int64(f.Key, f.Integer)
	case zapcore.StringType:
		return attribute.String(f.Key, f.String)
	case zapcore.ErrorType:
		if errVal, ok := f.Interface.(error); ok {
			return attribute.String(f.Key, errVal.Error())
		}
	}
	return attribute.String(f.Key, fmt.Sprint(f.Interface))
}
