package stack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/lex00/cdkutils-go/intrinsics"
)

// AssetKind distinguishes zipped file assets from container image assets.
type AssetKind string

const (
	FileAsset      AssetKind = "file"
	ContainerAsset AssetKind = "container-image"
)

// Qualifier is the bootstrap qualifier used in asset locations.
const Qualifier = "hnb659fds"

// Asset is a local file or directory that must be published before deploy.
type Asset struct {
	Kind AssetKind
	Path string
	Hash string
}

// ObjectKey is the S3 key of a file asset.
func (a Asset) ObjectKey() string {
	return a.Hash + ".zip"
}

// AssetBucket returns the bootstrap bucket holding file assets.
func (s *Stack) AssetBucket() any {
	return intrinsics.Concat("cdk-"+Qualifier+"-assets-", s.Account(), "-", s.Region())
}

// ImageURI returns the bootstrap repository URI of a container asset.
func (s *Stack) ImageURI(a Asset) any {
	return intrinsics.Concat(
		s.Account(), ".dkr.ecr.", s.Region(), ".", intrinsics.AWS_URL_SUFFIX,
		"/cdk-"+Qualifier+"-container-assets-", s.Account(), "-", s.Region(), ":", a.Hash,
	)
}

// AddFileAsset records a file or directory to be zipped and uploaded.
func (s *Stack) AddFileAsset(path string) (Asset, error) {
	return s.addAsset(FileAsset, path)
}

// AddContainerAsset records a Docker build context directory.
func (s *Stack) AddContainerAsset(dir string) (Asset, error) {
	return s.addAsset(ContainerAsset, dir)
}

// Assets returns the recorded assets.
func (s *Stack) Assets() []Asset {
	return append([]Asset(nil), s.assets...)
}

func (s *Stack) addAsset(kind AssetKind, path string) (Asset, error) {
	hash, err := HashPath(path)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %s: %w", path, err)
	}
	a := Asset{Kind: kind, Path: path, Hash: hash}
	for _, existing := range s.assets {
		if existing == a {
			return a, nil
		}
	}
	s.assets = append(s.assets, a)
	return a, nil
}

// HashPath returns a SHA-256 over a file's content, or over the relative
// names and contents of every regular file below a directory.
func HashPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if !info.IsDir() {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	for _, f := range files {
		rel, err := filepath.Rel(path, f)
		if err != nil {
			return "", err
		}
		io.WriteString(h, filepath.ToSlash(rel))
		h.Write([]byte{0})
		if err := hashFile(h, f); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
