package wailsipc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"updatekit/internal/ipc"
	"updatekit/internal/status"
)

type emitted struct {
	name string
	data []interface{}
}

type fakeRuntime struct {
	mu        sync.Mutex
	emitted   []emitted
	listeners map[string]func(...interface{})
	removed   []string
	dialogs   []runtime.MessageDialogOptions
	dialogErr error
	quits     int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{listeners: map[string]func(...interface{}){}}
}

func (f *fakeRuntime) EventsEmit(_ context.Context, name string, data ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emitted{name: name, data: data})
}

func (f *fakeRuntime) EventsOn(_ context.Context, name string, cb func(...interface{})) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[name] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, name)
		f.removed = append(f.removed, name)
	}
}

func (f *fakeRuntime) MessageDialog(_ context.Context, opts runtime.MessageDialogOptions) (string, error) {
	f.dialogs = append(f.dialogs, opts)
	return "Ok", f.dialogErr
}

func (f *fakeRuntime) Quit(context.Context) {
	f.quits++
}

func (f *fakeRuntime) fire(name string, data ...interface{}) {
	f.mu.Lock()
	cb := f.listeners[name]
	f.mu.Unlock()
	if cb != nil {
		cb(data...)
	}
}

func TestEndpointListensForEveryCommand(t *testing.T) {
	rt := newFakeRuntime()
	ep := NewEndpoint(context.Background(), rt, zerolog.Nop())
	for _, c := range status.Commands() {
		assert.Contains(t, rt.listeners, c.String())
	}

	rt.fire(status.CommandDownloadUpdate.String())
	rt.fire(status.CommandCheckForUpdates.String(), map[string]bool{"manual": true})

	msg := <-ep.Receive()
	assert.Equal(t, ipc.KindCommand, msg.Kind)
	assert.Equal(t, status.CommandDownloadUpdate.String(), msg.Name)
	assert.False(t, msg.HasPayload())

	msg = <-ep.Receive()
	assert.Equal(t, status.CommandCheckForUpdates.String(), msg.Name)
	assert.JSONEq(t, `{"manual":true}`, string(msg.Payload))
}

func TestEndpointEmitsStatusEvents(t *testing.T) {
	rt := newFakeRuntime()
	ep := NewEndpoint(context.Background(), rt, zerolog.Nop())

	withPayload, err := ipc.StatusMessage(status.UpdateAvailable, status.Release{Version: "3.1.0"})
	require.NoError(t, err)
	bare, err := ipc.StatusMessage(status.CheckingForUpdates, nil)
	require.NoError(t, err)

	require.NoError(t, ep.Send(context.Background(), withPayload))
	require.NoError(t, ep.Send(context.Background(), bare))

	require.Len(t, rt.emitted, 2)
	assert.Equal(t, "UpdateAvailable", rt.emitted[0].name)
	require.Len(t, rt.emitted[0].data, 1)
	raw, ok := rt.emitted[0].data[0].(json.RawMessage)
	require.True(t, ok)
	var rel status.Release
	require.NoError(t, json.Unmarshal(raw, &rel))
	assert.Equal(t, "3.1.0", rel.Version)

	assert.Equal(t, "CheckingForUpdates", rt.emitted[1].name)
	assert.Empty(t, rt.emitted[1].data)
}

func TestEndpointClose(t *testing.T) {
	rt := newFakeRuntime()
	ep := NewEndpoint(context.Background(), rt, zerolog.Nop())
	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())

	assert.Len(t, rt.removed, len(status.Commands()))
	_, ok := <-ep.Receive()
	assert.False(t, ok)

	msg, _ := ipc.StatusMessage(status.Error, nil)
	assert.ErrorIs(t, ep.Send(context.Background(), msg), ipc.ErrClosed)
}

func TestDialogError(t *testing.T) {
	rt := newFakeRuntime()
	rt.dialogErr = errors.New("headless")
	d := NewDialog(context.Background(), rt, zerolog.Nop())
	d.Error("Update failed", "Error occurred while extracting archive", "exit status 1")

	require.Len(t, rt.dialogs, 1)
	assert.Equal(t, runtime.ErrorDialog, rt.dialogs[0].Type)
	assert.Equal(t, "Update failed", rt.dialogs[0].Title)
	assert.Equal(t, "Error occurred while extracting archive\n\nexit status 1", rt.dialogs[0].Message)
}

func TestQuitFunc(t *testing.T) {
	rt := newFakeRuntime()
	QuitFunc(context.Background(), rt)()
	assert.Equal(t, 1, rt.quits)
}
