// Package payload materializes large binary columns for transport. List
// views never carry raw bytes; single records keep them for streaming.
package payload

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/store"
)

// Present replaces a payload whose metadata describes it.
const Present = true

// ForList rewrites the binary column of each row in place. A payload with a
// file name becomes the Present marker, any other payload becomes standard
// base64. Missing payloads stay nil.
func ForList(e models.Entity, rows []store.Row) []store.Row {
	if e.Binary == nil {
		return rows
	}
	for _, row := range rows {
		data, ok := bytesOf(row[e.Binary.Column])
		if !ok {
			row[e.Binary.Column] = nil
			continue
		}
		if hasName(row, e.Binary.NameColumn) {
			row[e.Binary.Column] = Present
			continue
		}
		row[e.Binary.Column] = base64.StdEncoding.EncodeToString(data)
	}
	return rows
}

// Content is a binary payload ready to be served.
type Content struct {
	Data        []byte
	Name        string
	ContentType string
}

// ContentOf extracts the payload of one fetched row. Entities without a
// binary field, and rows without a payload, are ErrNotFound.
func ContentOf(e models.Entity, row store.Row) (Content, error) {
	if e.Binary == nil {
		return Content{}, fmt.Errorf("%w: %s has no content", store.ErrNotFound, e.Name)
	}

	data, ok := bytesOf(row[e.Binary.Column])
	if !ok {
		return Content{}, fmt.Errorf("%w: no content", store.ErrNotFound)
	}

	c := Content{Data: data}
	if e.Binary.NameColumn != "" {
		c.Name, _ = row[e.Binary.NameColumn].(string)
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("%s-%v", e.Name, row[e.IDColumn])
	}
	if e.Binary.TypeColumn != "" {
		c.ContentType, _ = row[e.Binary.TypeColumn].(string)
	}
	if c.ContentType == "" {
		c.ContentType = http.DetectContentType(data)
	}
	return c, nil
}

// ETag is a strong validator over the payload bytes.
func (c Content) ETag() string {
	h := crc64nvme.New()
	h.Write(c.Data)
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return `"` + base58.Encode(sum[:]) + `"`
}

func bytesOf(v any) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		return t, t != nil
	case string:
		return []byte(t), true
	}
	return nil, false
}

func hasName(row store.Row, column string) bool {
	if column == "" {
		return false
	}
	switch t := row[column].(type) {
	case string:
		return t != ""
	case []byte:
		return len(t) > 0
	}
	return false
}
