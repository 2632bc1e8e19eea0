package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/recstore"
	"github.com/andreyvit/recstore/config"
	"github.com/andreyvit/recstore/logging"
	"github.com/andreyvit/recstore/model"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.DB.File = filepath.Join(t.TempDir(), "app.db")
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg
}

func start(t *testing.T, cfg *config.Config) (*App, func() error) {
	t.Helper()
	a, err := New(cfg, logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()
	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop")
			return nil
		}
	}
	return a, stop
}

func TestRun_ShutdownCommitsPendingChanges(t *testing.T) {
	cfg := testConfig(t)
	a, stop := start(t, cfg)
	base := "http://" + a.Addr().String()

	for i := range 3 {
		resp, err := http.Post(base+"/customers", "application/json", strings.NewReader(fmt.Sprintf(`{"name":"c%d","email":"c%d@x.io"}`, i, i)))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp, err := http.Post(base+"/items", "application/json", strings.NewReader(`{"name":"box"}`))
	require.NoError(t, err)
	resp.Body.Close()

	// commit period is far away, so only shutdown can have committed these
	require.NoError(t, stop())
	assert.True(t, a.Store.IsClosed())

	store, err := recstore.Open(cfg.DB.File, model.Schema, recstore.Options{})
	require.NoError(t, err)
	defer store.Close()
	customers := recstore.NewCollection(store, model.Customers)
	n, err := customers.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	c, err := customers.Find(3)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "c2@x.io", c.Email)

	seq, err := store.Sequence("item_seq").Current()
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestRun_ScheduledCommit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Commit.Delay = 10 * time.Millisecond
	cfg.Commit.Period = 10 * time.Millisecond
	a, stop := start(t, cfg)
	defer stop()

	resp, err := http.Post("http://"+a.Addr().String()+"/items", "application/json", strings.NewReader(`{"name":"box"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Eventually(t, func() bool {
		return a.Store.Pending() == 0 && a.Store.CommitCount.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRun_ListAndHealth(t *testing.T) {
	cfg := testConfig(t)
	a, stop := start(t, cfg)
	defer stop()
	for i := range 50 {
		_, err := a.Items.Save(&model.Item{Name: fmt.Sprintf("i%d", i)})
		require.NoError(t, err)
	}
	base := "http://" + a.Addr().String()

	resp, err := http.Get(base + "/items")
	require.NoError(t, err)
	var items []model.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	resp.Body.Close()
	assert.Len(t, items, 50)

	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.File = ""
	_, err := New(cfg, logging.Nop())
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_StoreLocked(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.LockTimeout = 50 * time.Millisecond
	a, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, err = New(cfg, logging.Nop())
	assert.ErrorIs(t, err, recstore.ErrStorageUnavailable)
}

func TestRun_ListenFailureReleasesStore(t *testing.T) {
	a1, stop := start(t, testConfig(t))
	defer stop()

	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = a1.Addr().(*net.TCPAddr).Port
	a2, err := New(cfg, logging.Nop())
	require.NoError(t, err)

	err = a2.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, a2.Store.IsClosed())
}
