package remoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// FileEntry is one entry of a Bundle listing, as returned by
// GET /mounts/{id}/bundle?path=....
type FileEntry struct {
	Name        string              `json:"name"`
	Type        string              `json:"type"` // "dir" | "file"
	Size        int64               `json:"size"`
	Modified    int64               `json:"modified"`
	Hash        string              `json:"hash,omitempty"`
	ContentType string              `json:"contentType,omitempty"`
	Tags        map[string][]string `json:"tags,omitempty"`
}

// Bundle is a directory listing response: the directory itself plus its
// immediate children.
type Bundle struct {
	File  FileEntry   `json:"file"`
	Files []FileEntry `json:"files,omitempty"`
}

// MountDTO mirrors the wire shape of a mount.
type MountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Origin    string `json:"origin"`
	Online    bool   `json:"online"`
	IsPrimary bool   `json:"isPrimary"`
}

// RepoDTO mirrors the wire shape of a vault repo.
type RepoDTO struct {
	ID                          string  `json:"id"`
	Name                        string  `json:"name"`
	MountID                     string  `json:"mountId"`
	Path                        string  `json:"path"`
	Salt                        *string `json:"salt,omitempty"`
	PasswordValidator           string  `json:"passwordValidator"`
	PasswordValidatorEncrypted string  `json:"passwordValidatorEncrypted"`
}

// VaultRepoCreate is the POST /vault-repos request body.
type VaultRepoCreate struct {
	MountID                     string  `json:"mountId"`
	Path                        string  `json:"path"`
	Salt                        *string `json:"salt,omitempty"`
	PasswordValidator           string  `json:"passwordValidator"`
	PasswordValidatorEncrypted string  `json:"passwordValidatorEncrypted"`
}

// FilesCopy is the POST /mounts/{id}/files/copy request body.
type FilesCopy struct {
	ToMountID string `json:"toMountId"`
	ToPath    string `json:"toPath"`
}

// FilesMove is the POST /mounts/{id}/files/move request body.
type FilesMove struct {
	ToMountID string `json:"toMountId"`
	ToPath    string `json:"toPath"`
}

// FilesRename is the POST /mounts/{id}/files/rename request body.
type FilesRename struct {
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

// FilesNewFolder is the POST /mounts/{id}/files/new-folder request body.
type FilesNewFolder struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// ReposResponse is the GET /vault-repos response.
type ReposResponse struct {
	Repos []RepoDTO `json:"repos"`
}

// MountsResponse is the GET /mounts response.
type MountsResponse struct {
	Mounts []MountDTO `json:"mounts"`
}

// ListMounts lists every mount the current session's server has loaded.
// Mounts are server-owned: the client never creates or deletes one, it
// only discovers the set on connect and is told about Online flips over
// the event stream.
func (c *Client) ListMounts(ctx context.Context) ([]MountDTO, error) {
	resp, err := c.Do(ctx, "GET", "/mounts", nil)
	if err != nil {
		return nil, err
	}

	var out MountsResponse
	if err := DecodeJSON(resp, &out); err != nil {
		return nil, err
	}

	return out.Mounts, nil
}

// ListRepos lists all vault repos visible to the current session.
func (c *Client) ListRepos(ctx context.Context) ([]RepoDTO, error) {
	resp, err := c.Do(ctx, "GET", "/vault-repos", nil)
	if err != nil {
		return nil, err
	}

	var out ReposResponse
	if err := DecodeJSON(resp, &out); err != nil {
		return nil, err
	}

	return out.Repos, nil
}

// CreateRepo creates a new vault repo.
func (c *Client) CreateRepo(ctx context.Context, body VaultRepoCreate) (RepoDTO, error) {
	resp, err := c.Do(ctx, "POST", "/vault-repos", jsonBody(body))
	if err != nil {
		return RepoDTO{}, err
	}

	var out RepoDTO
	if err := DecodeJSON(resp, &out); err != nil {
		return RepoDTO{}, err
	}

	return out, nil
}

// DeleteRepo deletes a vault repo by id. A 404 is treated as success by the
// caller.
func (c *Client) DeleteRepo(ctx context.Context, repoID string) error {
	_, err := c.Do(ctx, "DELETE", "/vault-repos/"+url.PathEscape(repoID), nil)

	return err
}

// GetBundle fetches the listing of path under mountID.
func (c *Client) GetBundle(ctx context.Context, mountID, path string) (Bundle, error) {
	resp, err := c.Do(ctx, "GET", fmt.Sprintf("/mounts/%s/bundle?path=%s", url.PathEscape(mountID), url.QueryEscape(path)), nil)
	if err != nil {
		return Bundle{}, err
	}

	var out Bundle
	if err := DecodeJSON(resp, &out); err != nil {
		return Bundle{}, err
	}

	return out, nil
}

// GetFileInfo fetches info for a single file.
func (c *Client) GetFileInfo(ctx context.Context, mountID, path string) (FileEntry, error) {
	resp, err := c.Do(ctx, "GET", fmt.Sprintf("/mounts/%s/files/info?path=%s", url.PathEscape(mountID), url.QueryEscape(path)), nil)
	if err != nil {
		return FileEntry{}, err
	}

	var out FileEntry
	if err := DecodeJSON(resp, &out); err != nil {
		return FileEntry{}, err
	}

	return out, nil
}

// NewFolder creates a directory.
func (c *Client) NewFolder(ctx context.Context, mountID string, body FilesNewFolder) (FileEntry, error) {
	resp, err := c.Do(ctx, "POST", fmt.Sprintf("/mounts/%s/files/new-folder", url.PathEscape(mountID)), jsonBody(body))
	if err != nil {
		return FileEntry{}, err
	}

	var out FileEntry
	if err := DecodeJSON(resp, &out); err != nil {
		return FileEntry{}, err
	}

	return out, nil
}

// Move moves or renames a file.
func (c *Client) Move(ctx context.Context, mountID, path string, body FilesMove) (FileEntry, error) {
	resp, err := c.Do(ctx, "POST", fmt.Sprintf("/mounts/%s/files/move?path=%s", url.PathEscape(mountID), url.QueryEscape(path)), jsonBody(body))
	if err != nil {
		return FileEntry{}, err
	}

	var out FileEntry
	if err := DecodeJSON(resp, &out); err != nil {
		return FileEntry{}, err
	}

	return out, nil
}

// Copy copies a file.
func (c *Client) Copy(ctx context.Context, mountID, path string, body FilesCopy) (FileEntry, error) {
	resp, err := c.Do(ctx, "POST", fmt.Sprintf("/mounts/%s/files/copy?path=%s", url.PathEscape(mountID), url.QueryEscape(path)), jsonBody(body))
	if err != nil {
		return FileEntry{}, err
	}

	var out FileEntry
	if err := DecodeJSON(resp, &out); err != nil {
		return FileEntry{}, err
	}

	return out, nil
}

// Remove deletes a file or directory (recursively, for directories).
func (c *Client) Remove(ctx context.Context, mountID, path string) error {
	_, err := c.Do(ctx, "POST", fmt.Sprintf("/mounts/%s/files/remove?path=%s", url.PathEscape(mountID), url.QueryEscape(path)), nil)

	return err
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)

	return newBytesReader(b)
}
