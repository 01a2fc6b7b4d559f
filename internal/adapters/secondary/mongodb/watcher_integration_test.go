package mongodb

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
)

// channelDispatcher collects dispatched events for assertions.
type channelDispatcher struct {
	events chan domain.ChangeEvent
}

func (d *channelDispatcher) Dispatch(_ context.Context, event domain.ChangeEvent) {
	d.events <- event
}

func (d *channelDispatcher) next(t *testing.T) domain.ChangeEvent {
	t.Helper()
	select {
	case event := <-d.events:
		return event
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a change event")
		return domain.ChangeEvent{}
	}
}

// TestWatcher_Integration runs the watcher against a real replica set;
// change streams are not available on standalone servers.
func TestWatcher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("realtime_test")
	dispatcher := &channelDispatcher{events: make(chan domain.ChangeEvent, 16)}

	watcher := NewWatcher(db, dispatcher, Config{
		IgnoredCollections: []string{"audit_log"},
		BatchSize:          10,
		MaxAwait:           250 * time.Millisecond,
		FullDocumentMode:   string(options.UpdateLookup),
		MaxRestarts:        3,
	}, slog.New(slog.DiscardHandler))

	require.NoError(t, watcher.Start(ctx))
	require.Equal(t, domain.WatcherRunning, watcher.Status())

	todos := db.Collection("todos")

	// Insert
	res, err := todos.InsertOne(ctx, bson.M{"title": "ship it", "done": false})
	require.NoError(t, err)

	event := dispatcher.next(t)
	assert.Equal(t, "todos", event.Collection)
	assert.Equal(t, domain.OpInsert, event.Operation)
	assert.Equal(t, "ship it", event.Document["title"])

	// Update carries the changed fields and the looked-up document.
	_, err = todos.UpdateByID(ctx, res.InsertedID, bson.M{"$set": bson.M{"done": true}})
	require.NoError(t, err)

	event = dispatcher.next(t)
	assert.Equal(t, domain.OpUpdate, event.Operation)
	assert.Contains(t, event.UpdatedFields, "done")
	require.NotNil(t, event.Document)
	assert.Equal(t, "ship it", event.Document["title"])

	// Delete
	_, err = todos.DeleteOne(ctx, bson.M{"_id": res.InsertedID})
	require.NoError(t, err)

	event = dispatcher.next(t)
	assert.Equal(t, domain.OpDelete, event.Operation)
	assert.Nil(t, event.Document)

	// Mutations in an ignored collection never reach the dispatcher.
	_, err = db.Collection("audit_log").InsertOne(ctx, bson.M{"entry": "noise"})
	require.NoError(t, err)

	select {
	case event := <-dispatcher.events:
		t.Fatalf("unexpected event from ignored collection: %+v", event)
	case <-time.After(2 * time.Second):
	}

	// Graceful stop is awaited and observable.
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, watcher.Stop(stopCtx))
	assert.Equal(t, domain.WatcherStopped, watcher.Status())
}
