package control

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/net/gclient"
	"github.com/pkg/errors"

	"github.com/wlynxg/EtherHive/core/config"
	"github.com/wlynxg/EtherHive/core/info"
)

const (
	DeviceURL      = "/api/v1/device"
	DefaultTimeout = 5 * time.Second
)

// Client asks a provisioning server for per-device overrides.
type Client struct {
	server  string
	timeout time.Duration
	client  *gclient.Client
}

func New(server string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		server:  server,
		timeout: timeout,
		client:  gclient.New().Timeout(timeout),
	}
	return c
}

type DeviceReq struct {
	Node info.NodeInfo
	Name string
}

// Device fetches the overrides for the device called name. A server
// without an entry answers 404, which yields (nil, nil).
func (c *Client) Device(ctx context.Context, node info.NodeInfo, name string) (*gjson.Json, error) {
	path, err := url.JoinPath(c.server, DeviceURL)
	if err != nil {
		return nil, err
	}

	response, err := c.client.ContentJson().Post(ctx, path, DeviceReq{Node: node, Name: name})
	if err != nil {
		return nil, errors.Wrapf(err, "post %s", path)
	}
	defer response.Close()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, errors.Errorf("post %s: %s", path, response.Status)
	}

	res, err := gjson.LoadContent(response.ReadAll())
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return res, nil
}

// Loader applies server-side overrides to device records before
// bring-up.
type Loader struct {
	Client *Client
	Node   info.NodeInfo
}

var _ config.Loader = (*Loader)(nil)

func (l *Loader) Load(dev *config.DeviceConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.Client.timeout)
	defer cancel()

	res, err := l.Client.Device(ctx, l.Node, dev.Name)
	if err != nil || res == nil || res.IsNil() {
		return err
	}
	return errors.Wrapf(res.Scan(dev), "apply overrides to %s", dev.Name)
}
