package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const (
	dialTimeout = 2 * time.Second
	// callTimeout bounds every RPC. Sweep walks the ephemeral root and Stop
	// waits for workers, so this stays generous.
	callTimeout = 60 * time.Second
)

// Client is one connection to the daemon socket. It is safe for
// sequential use by a single CLI command.
type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpc:     rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
		timeout: callTimeout,
	}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func invoke[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	resp := new(Resp)
	pending := c.rpc.Go(serviceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case done := <-pending.Done:
		if done.Error != nil {
			return nil, done.Error
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: no reply from daemon within %s", method, c.timeout)
	}
}

func (c *Client) Stop() (*StopResponse, error) {
	return invoke[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

func (c *Client) Status() (*StatusResponse, error) {
	return invoke[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Jobs lists live jobs oldest first.
func (c *Client) Jobs() (*JobsResponse, error) {
	return invoke[JobsRequest, JobsResponse](c, "Jobs", JobsRequest{})
}

// CancelJob cancels the live job whose ID equals ref or ends with it.
func (c *Client) CancelJob(ref string) (*CancelJobResponse, error) {
	return invoke[CancelJobRequest, CancelJobResponse](c, "CancelJob", CancelJobRequest{Job: ref})
}

// History returns at most limit finished jobs, newest first, plus totals
// per terminal state.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	return invoke[HistoryRequest, HistoryResponse](c, "History", HistoryRequest{Limit: limit})
}

func (c *Client) Sweep() (*SweepResponse, error) {
	return invoke[SweepRequest, SweepResponse](c, "Sweep", SweepRequest{})
}

// TestNotification asks the daemon to message the configured admin chat.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return invoke[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
