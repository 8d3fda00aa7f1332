package engine

import "go.uber.org/zap"

// LogRenderer is the headless renderer: it logs a summary of every frame.
type LogRenderer struct {
	logger *zap.Logger
}

func NewLogRenderer(logger *zap.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(f Frame) {
	fields := []zap.Field{
		zap.String("ticker", f.Ticker),
		zap.Int("points", len(f.Points)),
		zap.Int("total", f.Total),
		zap.Int("offset", f.Offset),
		zap.Stringer("state", f.State),
		zap.String("label", f.Label),
	}
	if n := len(f.Points); n > 0 {
		fields = append(fields, zap.Float64("last", f.Points[n-1]))
	}
	r.logger.Info("Chart frame", fields...)
}
