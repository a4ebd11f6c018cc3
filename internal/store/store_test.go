package store

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func backends(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	ns, err := NewNATSStore(nc, "sessions", time.Hour)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
		"nats":   ns,
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Load(ctx, "conv-1")
			assert.True(t, errors.Is(err, ErrNotFound), "want ErrNotFound, got %v", err)

			in := session.State{session.KeyBranch: "main", session.KeyRepoOwner: "acme"}
			require.NoError(t, st.Save(ctx, "conv-1", in))

			in[session.KeyBranch] = "mutated"
			out, err := st.Load(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, session.State{session.KeyBranch: "main", session.KeyRepoOwner: "acme"}, out)

			require.NoError(t, st.Save(ctx, "conv-1", session.State{session.KeyBranch: "dev"}))
			out, err = st.Load(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, "dev", out[session.KeyBranch])

			require.NoError(t, st.Delete(ctx, "conv-1"))
			_, err = st.Load(ctx, "conv-1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, st.Delete(ctx, "conv-1"))
		})
	}
}

func TestStores_RejectInvalidIDs(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "../x", "a/b", "a.b", "-lead"} {
				assert.Error(t, st.Save(ctx, id, session.State{}), id)
				_, err := st.Load(ctx, id)
				assert.Error(t, err, id)
			}
		})
	}
}

func TestNATSStore_ReusesExistingBucket(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	a, err := NewNATSStore(nc, "shared", 0)
	require.NoError(t, err)
	require.NoError(t, a.Save(context.Background(), "c", session.State{"BRANCH": "main"}))

	b, err := NewNATSStore(nc, "shared", 0)
	require.NoError(t, err)
	got, err := b.Load(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "main", got["BRANCH"])
}

func TestOpen(t *testing.T) {
	st, closeFn, err := Open(Config{})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &MemoryStore{}, st)

	st, closeFn, err = Open(Config{Backend: BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &FileStore{}, st)

	server := startTestNATSServer(t)
	st, closeFn, err = Open(Config{Backend: BackendNATS, NATSURL: server.ClientURL(), Bucket: "open_test"})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &NATSStore{}, st)

	_, _, err = Open(Config{Backend: "redis"})
	assert.Error(t, err)
}
