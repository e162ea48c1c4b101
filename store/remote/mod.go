// Package remote implements a bucket reached over HTTP, and the controller
// that serves a bucket to such clients.
//
// The protocol uses three handlers:
//   - /blob?key=<key> with GET, PUT and DELETE
//   - /exists?key=<key> with GET, answering {"exists": bool}
//   - /list?prefix=<prefix> with GET, answering a JSON array of keys
package remote

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

const (
	// BlobPath is the path of the handler for the blobs.
	BlobPath = "/blob"
	// ExistsPath is the path of the handler for the existence checks.
	ExistsPath = "/exists"
	// ListPath is the path of the handler for the listings.
	ListPath = "/list"

	defaultTimeout = 30 * time.Second
)

type existsResponse struct {
	Exists bool `json:"exists"`
}

// Bucket is a client of a remote bucket.
//
// - implements store.Bucket
type Bucket struct {
	addr   string
	client *http.Client
}

// NewBucket returns a client of the bucket served at the address, for
// example "http://127.0.0.1:8080".
func NewBucket(addr string) *Bucket {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	return &Bucket{
		addr:   strings.TrimSuffix(addr, "/"),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Get implements store.Bucket.
func (b *Bucket) Get(key string) ([]byte, error) {
	resp, err := b.client.Get(b.url(BlobPath, "key", key))
	if err != nil {
		return nil, xerrors.Errorf("failed to get: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, xerrors.Errorf("key '%s': %w", key, store.ErrNotFound)
	}

	return readBody(resp)
}

// Set implements store.Bucket.
func (b *Bucket) Set(key string, data []byte) error {
	req, err := http.NewRequest(http.MethodPut, b.url(BlobPath, "key", key), bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	return b.do(req)
}

// Exists implements store.Bucket.
func (b *Bucket) Exists(key string) (bool, error) {
	resp, err := b.client.Get(b.url(ExistsPath, "key", key))
	if err != nil {
		return false, xerrors.Errorf("failed to check: %v", err)
	}

	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return false, err
	}

	var res existsResponse
	err = json.Unmarshal(body, &res)
	if err != nil {
		return false, xerrors.Errorf("failed to decode response: %v", err)
	}

	return res.Exists, nil
}

// List implements store.Bucket.
func (b *Bucket) List(prefix string) ([]string, error) {
	resp, err := b.client.Get(b.url(ListPath, "prefix", prefix))
	if err != nil {
		return nil, xerrors.Errorf("failed to list: %v", err)
	}

	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	keys := []string{}
	err = json.Unmarshal(body, &keys)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode response: %v", err)
	}

	return keys, nil
}

// Delete implements store.Bucket.
func (b *Bucket) Delete(key string) error {
	req, err := http.NewRequest(http.MethodDelete, b.url(BlobPath, "key", key), nil)
	if err != nil {
		return xerrors.Errorf("failed to create request: %v", err)
	}

	return b.do(req)
}

func (b *Bucket) do(req *http.Request) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return xerrors.Errorf("failed to send request: %v", err)
	}

	defer resp.Body.Close()

	_, err = readBody(resp)

	return err
}

func (b *Bucket) url(path, name, value string) string {
	return b.addr + path + "?" + url.Values{name: []string{value}}.Encode()
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
