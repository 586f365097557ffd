package repourl

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	SchemeHTTPS = "https"
	SchemeHTTP  = "http"
	SchemeSSH   = "ssh"
	SchemeGit   = "git"
	SchemeFile  = "file"
)

var (
	ErrEmpty       = errors.New("repository url is empty")
	ErrNoName      = errors.New("repository url has no repository name")
	ErrNoHost      = errors.New("repository url has no host")
	ErrBadScheme   = errors.New("unsupported repository url scheme")
	ErrWhitespaces = errors.New("repository url contains whitespaces")

	// user@host:path, the scp-like syntax understood by git
	scpLike = regexp.MustCompile(`^(?:([A-Za-z0-9._~-]+)@)?([A-Za-z0-9.-]+\.[A-Za-z0-9.-]+|[A-Za-z0-9-]{2,}):([^/].*|/.+)$`)
)

// RepositoryURL is the structured form of a git repository location.
type RepositoryURL struct {
	Raw    string
	Scheme string
	User   string
	Host   string
	// Path is the repository path without the leading slash.
	Path string
	// Name is the last path element without the ".git" suffix.
	// It is the directory name a clone creates.
	Name string
	// Local is set for plain filesystem paths and file:// urls.
	Local bool
}

// IsSecure is true for urls spelled with a lowercase "https://" prefix, the only transport
// accepted at registration. Parse itself accepts any case for the scheme, as git does.
func (r *RepositoryURL) IsSecure() bool {
	return r.Scheme == SchemeHTTPS && strings.HasPrefix(r.Raw, SchemeHTTPS+"://")
}

func (r *RepositoryURL) String() string {
	return r.Raw
}

// Parse recognizes, in order, urls with a scheme (https, http, ssh, git, file),
// the scp-like form user@host:path, and falls back to a local path.
func Parse(raw string) (*RepositoryURL, error) {
	if raw == "" {
		return nil, ErrEmpty
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return nil, ErrWhitespaces
	}

	if strings.Contains(raw, "://") {
		return parseWithScheme(raw)
	}

	if m := scpLike.FindStringSubmatch(raw); m != nil {
		p := strings.Trim(m[3], "/")
		name, err := leaf(p)
		if err != nil {
			return nil, err
		}
		return &RepositoryURL{Raw: raw, Scheme: SchemeSSH, User: m[1], Host: m[2], Path: p, Name: name}, nil
	}

	return parseLocal(raw)
}

func parseWithScheme(raw string) (*RepositoryURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid repository url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case SchemeHTTPS, SchemeHTTP, SchemeSSH, SchemeGit:
	case SchemeFile:
		local, err := parseLocal(u.Path)
		if err != nil {
			return nil, err
		}
		local.Raw = raw
		local.Scheme = SchemeFile
		return local, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadScheme, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, ErrNoHost
	}

	p := strings.Trim(u.Path, "/")
	name, err := leaf(p)
	if err != nil {
		return nil, err
	}

	return &RepositoryURL{
		Raw:    raw,
		Scheme: scheme,
		User:   u.User.Username(),
		Host:   u.Host,
		Path:   p,
		Name:   name,
	}, nil
}

func parseLocal(raw string) (*RepositoryURL, error) {
	cleaned := filepath.Clean(raw)
	name, err := leaf(filepath.ToSlash(cleaned))
	if err != nil {
		return nil, err
	}
	return &RepositoryURL{Raw: raw, Path: cleaned, Name: name, Local: true}, nil
}

func leaf(p string) (string, error) {
	name := strings.TrimSuffix(path.Base(strings.TrimRight(p, "/")), ".git")
	switch name {
	case "", ".", "..", "/":
		return "", ErrNoName
	}
	return name, nil
}
