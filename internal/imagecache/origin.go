package imagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultOriginHost is the WB basket host; {shard} is replaced per image.
	DefaultOriginHost = "https://basket-0{shard}.wb.ru"
	shardPlaceholder  = "{shard}"
	defaultMaxObject  = 16 << 20
)

// Location is where the origin keeps one image.
type Location struct {
	ID     int64
	Shard  int64  // id mod 10
	Volume string // id with its last three digits dropped
	Part   string // same value as Volume
}

// Locate derives the origin location of an image id. Ids below 1000 have an
// empty volume and part, as the origin expects.
func Locate(id int64) Location {
	digits := strconv.FormatInt(id, 10)
	dir := ""
	if len(digits) > 3 {
		dir = digits[:len(digits)-3]
	}
	return Location{ID: id, Shard: id % 10, Volume: dir, Part: dir}
}

// Path returns the origin path of the full-size product photo.
func (l Location) Path() string {
	return fmt.Sprintf("/vol%s/part%s/%d/images/c516x688/1.jpg", l.Volume, l.Part, l.ID)
}

// URL renders the location against a host template containing an optional
// {shard} placeholder.
func (l Location) URL(hostTemplate string) string {
	host := strings.ReplaceAll(hostTemplate, shardPlaceholder, strconv.FormatInt(l.Shard, 10))
	return strings.TrimRight(host, "/") + l.Path()
}

// HTTPOrigin fetches images over HTTP. The per-call deadline comes from the
// context passed to Fetch.
type HTTPOrigin struct {
	client         *http.Client
	hostTemplate   string
	maxObjectBytes int64
}

// NewHTTPOrigin builds an origin fetcher. A nil client uses http.DefaultClient,
// an empty host template uses DefaultOriginHost and a non-positive limit uses 16 MiB.
func NewHTTPOrigin(client *http.Client, hostTemplate string, maxObjectBytes int64) *HTTPOrigin {
	if client == nil {
		client = http.DefaultClient
	}
	if hostTemplate == "" {
		hostTemplate = DefaultOriginHost
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = defaultMaxObject
	}
	return &HTTPOrigin{client: client, hostTemplate: hostTemplate, maxObjectBytes: maxObjectBytes}
}

// Fetch downloads the image for id. Any non-2xx status is an error.
func (o *HTTPOrigin) Fetch(ctx context.Context, id int64) ([]byte, error) {
	url := Locate(id).URL(o.hostTemplate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build origin request")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, errors.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.maxObjectBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	if int64(len(body)) > o.maxObjectBytes {
		return nil, errors.Errorf("GET %s: image exceeds %d bytes", url, o.maxObjectBytes)
	}
	return body, nil
}
