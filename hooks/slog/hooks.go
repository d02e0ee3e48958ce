// Package sloghook logs cache events with log/slog. Keys are redacted and
// high-volume events can be sampled.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/cacheback"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	StaleHitEvery uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	staleHitCtr atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ cacheback.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(storageKey string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("cacheback.hit", "key", h.redact(storageKey))
}

func (h *Hooks) StaleHit(storageKey string, age time.Duration) {
	if h.l == nil || !sample(h.opts.StaleHitEvery, &h.staleHitCtr) {
		return
	}
	h.l.Debug("cacheback.stale_hit",
		"key", h.redact(storageKey),
		"age", age)
}

func (h *Hooks) Miss(storageKey string, fetchOnMiss bool) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("cacheback.miss",
		"key", h.redact(storageKey),
		"fetch_on_miss", fetchOnMiss)
}

func (h *Hooks) EnqueueFailed(job string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cacheback.enqueue_failed",
		"job", job,
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("cacheback.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cacheback.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) RefreshStored(job string, took time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("cacheback.refresh_stored",
		"job", job,
		"took", took)
}

func (h *Hooks) RefreshSkipped(job, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("cacheback.refresh_skipped",
		"job", job,
		"reason", reason)
}

func (h *Hooks) RefreshFailed(job string, stage cacheback.Stage, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("cacheback.refresh_failed",
		"job", job,
		"stage", string(stage),
		"err", err)
}
