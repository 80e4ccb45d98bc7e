package stopsignal

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/logger"
)

const (
	embeddedReadyTimeout = 5 * time.Second
	flagValue            = "1"
)

// NATSStore keeps flags in a JetStream key-value bucket so any process
// sharing the bucket can stop a job.
type NATSStore struct {
	conn     *nats.Conn
	kv       nats.KeyValue
	embedded *server.Server // nil when connected to an external server
	log      logger.Logger
}

// OpenNATS connects to cfg.URL, or to an embedded JetStream server when
// cfg.Embedded is set, and binds the bucket, creating it if missing.
func OpenNATS(cfg *conf.NATSConfig, log logger.Logger) (*NATSStore, error) {
	if log == nil {
		log = logger.Global().Module("stopsignal")
	}
	s := &NATSStore{log: log}

	url := cfg.URL
	if cfg.Embedded {
		ns, err := startEmbedded(cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		s.embedded = ns
		url = ns.ClientURL()
		log.Info("embedded nats server started", logger.String("url", url))
	}

	nc, err := nats.Connect(url,
		nats.Name("yardwatch-stopsignal"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		s.shutdownEmbedded()
		return nil, natsError(err, "connect")
	}
	s.conn = nc

	js, err := nc.JetStream()
	if err != nil {
		_ = s.Close()
		return nil, natsError(err, "jetstream")
	}
	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "yardwatch stop requests",
		})
	}
	if err != nil {
		_ = s.Close()
		return nil, natsError(err, "bind_bucket")
	}
	s.kv = kv
	return s, nil
}

func startEmbedded(storeDir string) (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, natsError(err, "embedded_server")
	}
	go ns.Start()
	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		return nil, natsError(fmt.Errorf("not ready after %s", embeddedReadyTimeout), "embedded_server")
	}
	return ns, nil
}

func natsError(err error, op string) error {
	return errors.New(fmt.Errorf("stop signal %s: %w", op, err)).
		Component("stopsignal").
		Category(errors.CategoryNetwork).
		Context("operation", op).
		Build()
}

func (s *NATSStore) Signal(ctx context.Context, recordingID uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.kv.PutString(Key(recordingID), flagValue); err != nil {
		return natsError(err, "signal")
	}
	return nil
}

func (s *NATSStore) IsSet(ctx context.Context, recordingID uint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.kv.Get(Key(recordingID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, nats.ErrKeyNotFound):
		return false, nil
	default:
		return false, natsError(err, "is_set")
	}
}

func (s *NATSStore) Clear(ctx context.Context, recordingID uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.kv.Delete(Key(recordingID)); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return natsError(err, "clear")
	}
	return nil
}

// Close closes the connection and stops the embedded server, if any.
func (s *NATSStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.shutdownEmbedded()
	return nil
}

func (s *NATSStore) shutdownEmbedded() {
	if s.embedded != nil {
		s.embedded.Shutdown()
		s.embedded.WaitForShutdown()
		s.embedded = nil
	}
}
