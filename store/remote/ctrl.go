package remote

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sync"

	"go.dedis.ch/sharefs"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// maxBlobSize is the largest blob accepted by the controller.
const maxBlobSize = 64 << 20

// NewCtrl creates a new controller that serves the bucket.
func NewCtrl(bucket store.Bucket) *Ctrl {
	return &Ctrl{
		bucket: bucket,
	}
}

// Ctrl holds the handlers of the remote bucket. Requests are served one at a
// time.
type Ctrl struct {
	sync.Mutex
	bucket store.Bucket
}

// Routes returns the handlers indexed by their path.
func (c *Ctrl) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		BlobPath:   c.Blob(),
		ExistsPath: c.Exists(),
		ListPath:   c.List(),
	}
}

// Blob handles the blob requests.
func (c *Ctrl) Blob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}

		c.Lock()
		defer c.Unlock()

		switch r.Method {
		case http.MethodGet:
			c.blobGET(w, key)
		case http.MethodPut:
			c.blobPUT(w, r, key)
		case http.MethodDelete:
			c.blobDELETE(w, key)
		default:
			http.Error(w, "only GET, PUT and DELETE requests allowed", http.StatusBadRequest)
		}
	}
}

// Exists handles the existence checks.
func (c *Ctrl) Exists() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET request allowed", http.StatusBadRequest)
			return
		}

		c.Lock()
		defer c.Unlock()

		found, err := c.bucket.Exists(r.URL.Query().Get("key"))
		if err != nil {
			http.Error(w, "failed to check: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, existsResponse{Exists: found})
	}
}

// List handles the listings.
func (c *Ctrl) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET request allowed", http.StatusBadRequest)
			return
		}

		c.Lock()
		defer c.Unlock()

		keys, err := c.bucket.List(r.URL.Query().Get("prefix"))
		if err != nil {
			http.Error(w, "failed to list: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, keys)
	}
}

func (c *Ctrl) blobGET(w http.ResponseWriter, key string) {
	data, err := c.bucket.Get(key)
	if xerrors.Is(err, store.ErrNotFound) {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to get: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (c *Ctrl) blobPUT(w http.ResponseWriter, r *http.Request, key string) {
	data, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBlobSize))
	if err != nil {
		http.Error(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = c.bucket.Set(key, data)
	if err != nil {
		http.Error(w, "failed to set: "+err.Error(), http.StatusInternalServerError)
		return
	}

	sharefs.Logger.Debug().Str("key", key).Int("size", len(data)).Msg("blob stored")
}

func (c *Ctrl) blobDELETE(w http.ResponseWriter, key string) {
	err := c.bucket.Delete(key)
	if err != nil {
		http.Error(w, "failed to delete: "+err.Error(), http.StatusInternalServerError)
		return
	}

	sharefs.Logger.Debug().Str("key", key).Msg("blob deleted")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to marshal result: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
