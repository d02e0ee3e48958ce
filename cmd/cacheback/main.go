// Command cacheback inspects and manages cache entries and refresh queues kept
// in Redis.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/unkn0wn-root/cacheback"
	"github.com/unkn0wn-root/cacheback/dispatch/redisq"
	"github.com/unkn0wn-root/cacheback/genstore"
	"github.com/unkn0wn-root/cacheback/internal/wire"
	cbslog "github.com/unkn0wn-root/cacheback/log/slog"
	rp "github.com/unkn0wn-root/cacheback/provider/redis"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "cacheback",
		Usage: "inspect and manage cacheback entries and refresh queues",
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"CACHEBACK_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "namespace",
			Usage:   "cache namespace (storage key prefix)",
			Value:   "cacheback",
			EnvVars: []string{"CACHEBACK_NAMESPACE"},
		},
		&cli.StringFlag{
			Name:    "queue-prefix",
			Usage:   "prefix of the refresh queue list",
			Value:   "cacheback",
			EnvVars: []string{"CACHEBACK_QUEUE_PREFIX"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Value:   "info",
			EnvVars: []string{"CACHEBACK_LOG_LEVEL", "LOG_LEVEL"},
		},
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:      "key",
			Usage:     "derive the cache key of a job call",
			ArgsUsage: "<job-name>",
			Action:    runKey,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "args",
					Usage: "positional arguments as a JSON array",
					Value: "[]",
				},
				&cli.StringFlag{
					Name:  "kwargs",
					Usage: "named arguments as a JSON object",
					Value: "{}",
				},
			},
		},
		&cli.Command{
			Name:      "inspect",
			Usage:     "show the metadata of a stored entry",
			ArgsUsage: "<key>",
			Action:    runInspect,
		},
		&cli.Command{
			Name:      "invalidate",
			Usage:     "bump the generation of a key and delete its entry",
			ArgsUsage: "<key>",
			Action:    runInvalidate,
		},
		&cli.Command{
			Name:   "queue",
			Usage:  "print the number of pending refresh requests",
			Action: runQueue,
		},
	}
	return app
}

func configLogger(cctx *cli.Context) cacheback.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cctx.String("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewJSONHandler(cctx.App.ErrWriter, &slog.HandlerOptions{Level: level})
	return cbslog.Logger{L: slog.New(h)}
}

func configRedis(cctx *cli.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(cctx.String("redis-url"))
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func storageKey(cctx *cli.Context, key string) string {
	return cctx.String("namespace") + ":" + key
}

func runKey(cctx *cli.Context) error {
	name := cctx.Args().First()
	if name == "" {
		return fmt.Errorf("need to provide job name as an argument")
	}
	var call cacheback.Args
	pos, err := decodeJSON(cctx.String("args"))
	if err != nil {
		return fmt.Errorf("--args: %w", err)
	}
	named, err := decodeJSON(cctx.String("kwargs"))
	if err != nil {
		return fmt.Errorf("--kwargs: %w", err)
	}
	var ok bool
	if call.Positional, ok = pos.([]any); !ok {
		return fmt.Errorf("--args must be a JSON array")
	}
	if call.Named, ok = named.(map[string]any); !ok {
		return fmt.Errorf("--kwargs must be a JSON object")
	}
	key, err := cacheback.DeriveKey(name, call)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, key)
	return nil
}

// decodeJSON keeps integral numbers as int64 so derived keys match the ones
// Go callers produce with integer arguments.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return numbers(v), nil
}

func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = numbers(t[k])
		}
		return t
	default:
		return v
	}
}

func runInspect(cctx *cli.Context) error {
	ctx := cctx.Context
	key := cctx.Args().First()
	if key == "" {
		return fmt.Errorf("need to provide key as an argument")
	}
	rdb, err := configRedis(cctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, err := rp.New(rp.Config{Client: rdb})
	if err != nil {
		return err
	}
	sk := storageKey(cctx, key)
	raw, ok, err := store.Get(ctx, sk)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no entry for %s", sk)
	}
	expiresIn, _, err := store.TTL(ctx, sk)
	if err != nil {
		return err
	}
	e, err := wire.Decode(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", sk, err)
	}
	current, err := genstore.NewRedis(rdb, 0).Snapshot(ctx, sk)
	if err != nil {
		return err
	}
	age := time.Since(e.FetchedAt)
	if age < 0 {
		age = 0
	}
	info := map[string]any{
		"key":         sk,
		"fetched_at":  e.FetchedAt.UTC().Format(time.RFC3339Nano),
		"lifetime":    e.Lifetime.String(),
		"age":         age.Truncate(time.Millisecond).String(),
		"stale":       age >= e.Lifetime,
		"gen":         e.Gen,
		"current_gen": current,
		"valid":       e.Gen == current,
		"bytes":       len(e.Payload),
		"expires_in":  expiresIn.Truncate(time.Second).String(),
	}
	enc := json.NewEncoder(cctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func runInvalidate(cctx *cli.Context) error {
	ctx := cctx.Context
	key := cctx.Args().First()
	if key == "" {
		return fmt.Errorf("need to provide key as an argument")
	}
	log := configLogger(cctx)
	rdb, err := configRedis(cctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, err := rp.New(rp.Config{Client: rdb})
	if err != nil {
		return err
	}
	sk := storageKey(cctx, key)
	gen, bumpErr := genstore.NewRedis(rdb, 0).Bump(ctx, sk)
	delErr := store.Del(ctx, sk)
	if bumpErr != nil || delErr != nil {
		return &cacheback.InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	log.Info("invalidated", cacheback.Fields{"key": sk, "gen": gen})
	fmt.Fprintf(cctx.App.Writer, "%s gen=%d\n", sk, gen)
	return nil
}

func runQueue(cctx *cli.Context) error {
	rdb, err := configRedis(cctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	q, err := redisq.NewQueue(rdb, cctx.String("queue-prefix"))
	if err != nil {
		return err
	}
	n, err := q.Len(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "%s %d\n", q.Key(), n)
	return nil
}
