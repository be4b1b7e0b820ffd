package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mcphost/framing"
	"github.com/localrivet/mcphost/logx"
	"github.com/localrivet/mcphost/protocol"
	"github.com/localrivet/mcphost/spawn/spawntest"
	"github.com/localrivet/mcphost/transport"
)

func startConnected(t *testing.T, stub *spawntest.StubServer) (*Client, *spawntest.Process) {
	t.Helper()
	proc := stub.Start()
	t.Cleanup(func() { proc.Exit(nil) })

	cli := New("test-host", "0.0.1", WithLogger(logx.NopLogger{}))
	trans := transport.NewProcessTransport(proc, logx.NopLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Connect(ctx, trans))
	return cli, proc
}

// rawWorker hand-plays the worker side of the wire: it parses everything the
// client writes, passes it to handle, and lets tests inject arbitrary frames
// toward the client.
type rawWorker struct {
	t    *testing.T
	proc *spawntest.Process

	mu  sync.Mutex
	out *framing.Framer
}

func startRawWorker(t *testing.T, handle func(w *rawWorker, msg *protocol.Message)) (*rawWorker, *spawntest.Process) {
	t.Helper()
	w := &rawWorker{t: t, proc: spawntest.NewProcess(), out: framing.NewFramer()}
	t.Cleanup(func() { w.proc.Exit(nil) })
	go func() {
		in := framing.NewFramer()
		buf := make([]byte, 4096)
		for {
			n, err := w.proc.WorkerInput().Read(buf)
			if n > 0 {
				for _, frame := range in.Feed(buf[:n]) {
					if frame.Err == nil {
						handle(w, frame.Message)
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return w, w.proc
}

func (w *rawWorker) send(msg interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := w.out.Encode(msg)
	require.NoError(w.t, err)
	_ = w.proc.WriteStdout(data)
}

func (w *rawWorker) answerInitialize(req *protocol.Request) {
	w.send(protocol.NewSuccessResponse(req.ID, protocol.InitializeResult{
		ProtocolVersion: protocol.CurrentProtocolVersion,
		ServerInfo:      protocol.Implementation{Name: "raw", Version: "0.0.0"},
	}))
}

func connectRaw(t *testing.T, proc *spawntest.Process) *Client {
	t.Helper()
	cli := New("test-host", "0.0.1", WithLogger(logx.NopLogger{}))
	trans := transport.NewProcessTransport(proc, logx.NopLogger{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Connect(ctx, trans))
	return cli
}

func TestConnectPerformsHandshake(t *testing.T) {
	stub := &spawntest.StubServer{
		Name:  "alpha",
		Tools: []protocol.Tool{{Name: "echo", Description: "echoes input"}},
	}
	cli, _ := startConnected(t, stub)

	assert.True(t, cli.Connected())
	assert.Equal(t, "alpha", cli.ServerInfo().Name)
	assert.NotNil(t, cli.ServerCapabilities().Tools)
	assert.Nil(t, cli.ServerCapabilities().Resources)
}

func TestConnectTwiceFails(t *testing.T) {
	stub := &spawntest.StubServer{Name: "alpha"}
	cli, proc := startConnected(t, stub)

	err := cli.Connect(context.Background(), transport.NewProcessTransport(proc, logx.NopLogger{}))
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestListToolsAndCallTool(t *testing.T) {
	stub := &spawntest.StubServer{
		Name:  "alpha",
		Tools: []protocol.Tool{{Name: "echo"}, {Name: "search"}},
	}
	cli, _ := startConnected(t, stub)
	ctx := context.Background()

	tools, err := cli.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)

	result, err := cli.CallTool(ctx, "echo", map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "alpha:echo", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestListResourcesAndReadResource(t *testing.T) {
	stub := &spawntest.StubServer{
		Name:      "files",
		Resources: []protocol.Resource{{URI: "file:///readme", Name: "readme"}},
	}
	cli, _ := startConnected(t, stub)
	ctx := context.Background()

	resources, err := cli.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	result, err := cli.ReadResource(ctx, "file:///readme")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "file:///readme", result.Contents[0].URI)
	assert.Equal(t, "files", result.Contents[0].Text)
}

func TestPing(t *testing.T) {
	stub := &spawntest.StubServer{Name: "alpha"}
	cli, _ := startConnected(t, stub)
	assert.NoError(t, cli.Ping(context.Background()))
}

func TestServerErrorIsTyped(t *testing.T) {
	stub := &spawntest.StubServer{Name: "alpha", Tools: []protocol.Tool{{Name: "echo"}}}
	stub.OnRequest = func(req *protocol.Request) (*protocol.Response, bool) {
		if req.Method == protocol.MethodCallTool {
			return protocol.NewErrorResponse(req.ID, protocol.ErrorCodeInvalidParams, "bad arguments", nil), true
		}
		return nil, false
	}
	cli, _ := startConnected(t, stub)

	_, err := cli.CallTool(context.Background(), "echo", nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, protocol.ErrorCodeInvalidParams, serverErr.Code)
	assert.Equal(t, protocol.MethodCallTool, serverErr.Method)
}

func TestNotConnectedOperationsFail(t *testing.T) {
	cli := New("test-host", "0.0.1", WithLogger(logx.NopLogger{}))
	_, err := cli.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = cli.CallTool(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, cli.Ping(context.Background()), ErrNotConnected)
}

// A request that times out must not poison the connection: its late response
// is discarded as stale and the next request still correlates correctly.
func TestTimedOutRequestIsDroppedAsStale(t *testing.T) {
	var delayOnce sync.Once
	_, proc := startRawWorker(t, func(w *rawWorker, msg *protocol.Message) {
		if msg.Kind != protocol.KindRequest {
			return
		}
		req := msg.Request
		switch req.Method {
		case protocol.MethodInitialize:
			w.answerInitialize(req)
		case protocol.MethodListTools:
			delayed := false
			delayOnce.Do(func() { delayed = true })
			if delayed {
				go func(id interface{}) {
					time.Sleep(300 * time.Millisecond)
					w.send(protocol.NewSuccessResponse(id, protocol.ListToolsResult{Tools: []protocol.Tool{}}))
				}(req.ID)
				return
			}
			w.send(protocol.NewSuccessResponse(req.ID, protocol.ListToolsResult{
				Tools: []protocol.Tool{{Name: "late"}},
			}))
		}
	})
	cli := connectRaw(t, proc)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err := cli.ListTools(ctx)
	cancel()
	assert.ErrorIs(t, err, ErrRequestTimeout)

	// The late response lands in the meantime and must be ignored.
	time.Sleep(300 * time.Millisecond)

	tools, err := cli.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "late", tools[0].Name)
}

func TestServerPingIsAutoAnswered(t *testing.T) {
	responses := make(chan *protocol.Response, 4)
	w, proc := startRawWorker(t, func(w *rawWorker, msg *protocol.Message) {
		switch msg.Kind {
		case protocol.KindRequest:
			if msg.Request.Method == protocol.MethodInitialize {
				w.answerInitialize(msg.Request)
			}
		case protocol.KindResponse:
			responses <- msg.Response
		}
	})
	_ = connectRaw(t, proc)

	w.send(protocol.NewRequest("srv-1", protocol.MethodPing, nil))
	select {
	case resp := <-responses:
		assert.Equal(t, "srv-1", resp.ID)
		assert.Nil(t, resp.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the ping answer")
	}

	w.send(protocol.NewRequest("srv-2", "sampling/createMessage", nil))
	select {
	case resp := <-responses:
		assert.Equal(t, "srv-2", resp.ID)
		require.NotNil(t, resp.Error)
		assert.Equal(t, protocol.ErrorCodeMethodNotFound, resp.Error.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the rejection")
	}
}

func TestNotificationsFanOut(t *testing.T) {
	w, proc := startRawWorker(t, func(w *rawWorker, msg *protocol.Message) {
		if msg.Kind == protocol.KindRequest && msg.Request.Method == protocol.MethodInitialize {
			w.answerInitialize(msg.Request)
		}
	})

	cli := New("test-host", "0.0.1", WithLogger(logx.NopLogger{}))
	seen := make(chan string, 4)
	cli.OnNotification(func(method string, params interface{}) { seen <- method })

	trans := transport.NewProcessTransport(proc, logx.NopLogger{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cli.Connect(ctx, trans))

	w.send(protocol.NewNotification(protocol.MethodNotifyToolsListChanged, nil))
	select {
	case method := <-seen:
		assert.Equal(t, protocol.MethodNotifyToolsListChanged, method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the notification")
	}
}

func TestWorkerExitFailsOutstandingRequests(t *testing.T) {
	stub := &spawntest.StubServer{Name: "alpha", Tools: []protocol.Tool{{Name: "echo"}}}
	stub.OnRequest = func(req *protocol.Request) (*protocol.Response, bool) {
		if req.Method == protocol.MethodCallTool {
			return nil, true // never answer
		}
		return nil, false
	}
	cli, proc := startConnected(t, stub)

	closed := make(chan struct{})
	cli.OnConnectionClosed(func() { close(closed) })

	go func() {
		time.Sleep(50 * time.Millisecond)
		proc.Exit(nil)
	}()

	_, err := cli.CallTool(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the closed callback")
	}
	assert.False(t, cli.Connected())
}
