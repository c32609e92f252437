package remoteapi

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// Download streams the encrypted bytes of path under mountID over a
// dedicated content endpoint, separate from the JSON metadata API. The
// caller closes the returned ReadCloser.
func (c *Client) Download(ctx context.Context, mountID, path string) (io.ReadCloser, error) {
	resp, err := c.Do(ctx, "GET", fmt.Sprintf("/mounts/%s/files/content?path=%s", url.PathEscape(mountID), url.QueryEscape(path)), nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Upload streams encrypted bytes to parentPath/name under mountID, creating
// or overwriting the file, and returns the resulting FileEntry.
func (c *Client) Upload(ctx context.Context, mountID, parentPath, name string, body io.Reader) (FileEntry, error) {
	target := fmt.Sprintf("/mounts/%s/files/content?path=%s", url.PathEscape(mountID), url.QueryEscape(parentPath+"/"+name))

	resp, err := c.Do(ctx, "PUT", target, body)
	if err != nil {
		return FileEntry{}, err
	}

	var out FileEntry
	if err := DecodeJSON(resp, &out); err != nil {
		return FileEntry{}, err
	}

	return out, nil
}
