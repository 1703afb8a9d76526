package awsclient

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"github.com/lex00/cdkutils-go/stack"
)

// zipEpoch is the modification time stamped on archive entries so that
// equal inputs give byte-identical archives.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// PublishFileAssets zips every file asset and uploads it to bucket under
// its object key. Assets already present are skipped and container assets
// are left to the image publisher. It returns the keys it uploaded.
func PublishFileAssets(ctx context.Context, client S3API, bucket string, assets []stack.Asset) ([]string, error) {
	var uploaded []string
	for _, a := range assets {
		if a.Kind != stack.FileAsset {
			log.WithField("path", a.Path).Debug("skipping container asset")
			continue
		}
		key := a.ObjectKey()
		exists, err := objectExists(ctx, client, bucket, key)
		if err != nil {
			return uploaded, err
		}
		if exists {
			log.WithField("key", key).Debug("asset already published")
			continue
		}

		var buf bytes.Buffer
		if err := ZipPath(&buf, a.Path); err != nil {
			return uploaded, err
		}
		size := buf.Len()
		if err := UploadObject(ctx, client, bucket, key, &buf); err != nil {
			return uploaded, err
		}
		log.WithField("path", a.Path).WithField("key", key).WithField("size", humanize.Bytes(uint64(size))).Info("asset published")
		uploaded = append(uploaded, key)
	}
	return uploaded, nil
}

// ZipPath writes a zip archive of path to w. A directory is archived with
// paths relative to it; a file is archived under its base name.
func ZipPath(w io.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	if !info.IsDir() {
		if err := addZipFile(zw, path, filepath.Base(path)); err != nil {
			return err
		}
		return zw.Close()
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
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		rel, err := filepath.Rel(path, f)
		if err != nil {
			return err
		}
		if err := addZipFile(zw, f, filepath.ToSlash(rel)); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addZipFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	hdr.Modified = zipEpoch

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}
