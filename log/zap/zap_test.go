package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/cacheback"
)

func TestFieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Error("refresh failed", cacheback.Fields{"job": "UserLookup", "err": errors.New("boom")})
	l.Debug("bare", nil)

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("got %d entries, want 2", len(all))
	}
	e := all[0]
	if e.Level != zapcore.ErrorLevel || e.Message != "refresh failed" {
		t.Fatalf("unexpected entry: %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["job"] != "UserLookup" || ctx["err"] != "boom" {
		t.Fatalf("fields: %v", ctx)
	}
	if len(all[1].Context) != 0 {
		t.Fatalf("nil fields should add nothing: %v", all[1].Context)
	}
}
