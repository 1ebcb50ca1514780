// The tracker consumes location fix batches from Kafka and maintains
// the per-ride rolling windows in Redis, independently of the API
// process's lifecycle.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/ingest"
	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/tracking"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_messages_consumed_total",
		Help: "Total fix batch messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_messages_invalid_total",
		Help: "Total undecodable or invalid messages received",
	})
	fixesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_fixes_stored_total",
		Help: "Total fixes appended to ride windows",
	})
	fixesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_fixes_rejected_total",
		Help: "Total fixes rejected by coordinate validation",
	})
	windowErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_window_errors_total",
		Help: "Total window store errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, fixesStored, fixesRejected, windowErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokers := []string{"localhost:9092"}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		brokers = brokers[:0]
		for _, b := range strings.Split(env, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "ride-locations"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "careride-tracker"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: os.Getenv("REDIS_PASSWORD")})
	window := tracking.NewRedisWindowFromClient(rc)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	log.Printf("tracker listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down tracker")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var env ingest.FixEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil || env.RideID == "" {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		if err := appendWithRetry(ctx, window, env, 3, 200*time.Millisecond); err != nil {
			windowErrors.Inc()
			log.Printf("window append failed for ride=%s: %v", env.RideID, err)
		}
	}
}

// WindowAppender is the subset of the window store the tracker needs,
// kept small for tests.
type WindowAppender interface {
	Append(ctx context.Context, rideID string, fix models.LocationFix) error
}

// appendWithRetry appends every valid fix in the envelope, retrying
// each store write with exponential backoff. Fixes that fail
// coordinate validation or the accuracy gate are dropped, not retried.
func appendWithRetry(ctx context.Context, w WindowAppender, env ingest.FixEnvelope, attempts int, delay time.Duration) error {
	for _, fix := range env.Fixes {
		if err := geo.Validate(fix.Lat, fix.Lng); err != nil {
			fixesRejected.Inc()
			continue
		}
		if !geo.Authoritative(fix) {
			fixesRejected.Inc()
			continue
		}
		d := delay
		var lastErr error
		for i := 0; i < attempts; i++ {
			lastErr = w.Append(ctx, env.RideID, fix)
			if lastErr == nil {
				break
			}
			if i < attempts-1 {
				time.Sleep(d)
				d *= 2
			}
		}
		if lastErr != nil {
			return lastErr
		}
		fixesStored.Inc()
	}
	return nil
}
