package graph

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"accessgraph/pkg/accesserr"
)

// Store abstracts the byte-addressed backing store a checkpoint is
// persisted to. A checkpoint is always a single named blob — the contracted
// graph is written and read whole, never incrementally.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
}

// LocalStore persists checkpoints to the local filesystem, writing through
// a temp file and renaming into place so a reader never observes a
// partially-written checkpoint.
type LocalStore struct {
	Dir string
}

func (s LocalStore) path(name string) string { return filepath.Join(s.Dir, name) }

func (s LocalStore) Save(_ context.Context, name string, r io.Reader) error {
	final := s.path(name)
	tmp := final + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return accesserr.Wrapf(err, "create temp checkpoint %s", tmp)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return accesserr.Wrap(err, "write checkpoint")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return accesserr.Wrap(err, "close checkpoint")
	}
	if err := os.Rename(tmp, final); err != nil {
		return accesserr.Wrap(err, "rename checkpoint into place")
	}
	return nil
}

func (s LocalStore) Load(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, accesserr.Wrapf(err, "open checkpoint %s", name)
	}
	return f, nil
}

// S3Store persists checkpoints to an S3 bucket, for deployments that want a
// durable checkpoint store shared across machines rather than a local disk.
type S3Store struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

func (s S3Store) key(name string) string { return filepath.Join(s.Prefix, name) }

func (s S3Store) Save(ctx context.Context, name string, r io.Reader) error {
	uploader := manager.NewUploader(s.Client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(name)),
		Body:   r,
	})
	if err != nil {
		return accesserr.Wrapf(err, "upload checkpoint %s to s3://%s", name, s.Bucket)
	}
	return nil
}

func (s S3Store) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, accesserr.Wrapf(err, "download checkpoint %s from s3://%s", name, s.Bucket)
	}
	return out.Body, nil
}

const (
	magicBytes    = "ACCGRPH1"
	checkpointVer = uint32(1)
)

// checkpointHeader is the first record inside the zstd-compressed stream,
// ahead of the arrays; it is covered by the CRC32 that trails the stream.
type checkpointHeader struct {
	Magic        [8]byte
	Version      uint32
	NumNodes     uint32
	NumFwdEdges  uint32
	NumBwdEdges  uint32
	NumOrigEdges uint32
}

// WriteCheckpoint serializes a CHGraph plus its core-node set (nodes left
// uncontracted by the shortcut-count cap) to store under name.
func WriteCheckpoint(ctx context.Context, store Store, name string, chg *CHGraph, coreNodes *roaring.Bitmap) error {
	var body bytes.Buffer

	hdr := checkpointHeader{
		Version:      checkpointVer,
		NumNodes:     chg.NumNodes,
		NumFwdEdges:  uint32(len(chg.FwdHead)),
		NumBwdEdges:  uint32(len(chg.BwdHead)),
		NumOrigEdges: uint32(len(chg.OrigHead)),
	}
	copy(hdr.Magic[:], magicBytes)

	zw, err := zstd.NewWriter(&body)
	if err != nil {
		return accesserr.Wrap(err, "create zstd writer")
	}
	crc := crc32.NewIEEE()
	w := io.MultiWriter(zw, crc)

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return accesserr.Wrap(err, "write checkpoint header")
	}
	fields := [][]uint32{
		chg.Rank,
		chg.FwdFirstOut, chg.FwdHead, chg.FwdWeight,
		chg.BwdFirstOut, chg.BwdHead, chg.BwdWeight,
		chg.OrigFirstOut, chg.OrigHead, chg.OrigWeight,
	}
	for _, f := range fields {
		if err := writeUint32Slice(w, f); err != nil {
			return accesserr.Wrap(err, "write checkpoint body")
		}
	}
	if err := writeInt32Slice(w, chg.FwdMiddle); err != nil {
		return accesserr.Wrap(err, "write FwdMiddle")
	}
	if err := writeInt32Slice(w, chg.BwdMiddle); err != nil {
		return accesserr.Wrap(err, "write BwdMiddle")
	}

	if coreNodes == nil {
		coreNodes = roaring.New()
	}
	coreBytes, err := coreNodes.ToBytes()
	if err != nil {
		return accesserr.Wrap(err, "serialize core node bitmap")
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(coreBytes))); err != nil {
		return accesserr.Wrap(err, "write core bitmap length")
	}
	if _, err := w.Write(coreBytes); err != nil {
		return accesserr.Wrap(err, "write core bitmap")
	}

	if err := zw.Close(); err != nil {
		return accesserr.Wrap(err, "close zstd writer")
	}
	if err := binary.Write(&body, binary.LittleEndian, crc.Sum32()); err != nil {
		return accesserr.Wrap(err, "write checkpoint trailer")
	}

	return store.Save(ctx, name, &body)
}

// ReadCheckpoint restores a CHGraph plus its core-node bitmap from store.
func ReadCheckpoint(ctx context.Context, store Store, name string) (*CHGraph, *roaring.Bitmap, error) {
	rc, err := store.Load(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, accesserr.Wrap(err, "read checkpoint")
	}
	if len(raw) < 4 {
		return nil, nil, accesserr.Wrap(accesserr.ErrInvalidGraph, "checkpoint too short")
	}
	payload, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	wantCRC := binary.LittleEndian.Uint32(trailer)

	zr, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, accesserr.Wrap(err, "create zstd reader")
	}
	defer zr.Close()

	crc := crc32.NewIEEE()
	r := io.TeeReader(zr, crc)

	var hdr checkpointHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, accesserr.Wrap(err, "read checkpoint header")
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, nil, accesserr.Wrapf(accesserr.ErrInvalidGraph, "bad checkpoint magic %q", hdr.Magic)
	}
	if hdr.Version != checkpointVer {
		return nil, nil, accesserr.Wrapf(accesserr.ErrInvalidGraph, "unsupported checkpoint version %d", hdr.Version)
	}

	chg := &CHGraph{NumNodes: hdr.NumNodes}
	var err2 error
	chg.Rank, err2 = readUint32Slice(r, int(hdr.NumNodes))
	if err2 != nil {
		return nil, nil, accesserr.Wrap(err2, "read Rank")
	}
	chg.FwdFirstOut, _ = readUint32Slice(r, int(hdr.NumNodes+1))
	chg.FwdHead, _ = readUint32Slice(r, int(hdr.NumFwdEdges))
	chg.FwdWeight, _ = readUint32Slice(r, int(hdr.NumFwdEdges))
	chg.BwdFirstOut, _ = readUint32Slice(r, int(hdr.NumNodes+1))
	chg.BwdHead, _ = readUint32Slice(r, int(hdr.NumBwdEdges))
	chg.BwdWeight, _ = readUint32Slice(r, int(hdr.NumBwdEdges))
	chg.OrigFirstOut, _ = readUint32Slice(r, int(hdr.NumNodes+1))
	chg.OrigHead, _ = readUint32Slice(r, int(hdr.NumOrigEdges))
	chg.OrigWeight, _ = readUint32Slice(r, int(hdr.NumOrigEdges))
	chg.FwdMiddle, _ = readInt32Slice(r, int(hdr.NumFwdEdges))
	chg.BwdMiddle, _ = readInt32Slice(r, int(hdr.NumBwdEdges))

	var coreLen uint32
	if err := binary.Read(r, binary.LittleEndian, &coreLen); err != nil {
		return nil, nil, accesserr.Wrap(err, "read core bitmap length")
	}
	coreBytes := make([]byte, coreLen)
	if _, err := io.ReadFull(r, coreBytes); err != nil {
		return nil, nil, accesserr.Wrap(err, "read core bitmap")
	}
	core := roaring.New()
	if coreLen > 0 {
		if _, err := core.FromBuffer(coreBytes); err != nil {
			return nil, nil, accesserr.Wrap(err, "parse core bitmap")
		}
	}

	if crc.Sum32() != wantCRC {
		return nil, nil, accesserr.Wrap(accesserr.ErrInvalidGraph, "checkpoint CRC32 mismatch")
	}
	if err := validateCSR(chg.FwdFirstOut, chg.FwdHead, chg.NumNodes); err != nil {
		return nil, nil, accesserr.Wrap(err, "forward overlay invalid")
	}
	if err := validateCSR(chg.BwdFirstOut, chg.BwdHead, chg.NumNodes); err != nil {
		return nil, nil, accesserr.Wrap(err, "backward overlay invalid")
	}

	return chg, core, nil
}

func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return accesserr.Wrapf(accesserr.ErrInvalidGraph, "FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return accesserr.Wrapf(accesserr.ErrInvalidGraph, "FirstOut not monotonic at %d", i)
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return accesserr.Wrapf(accesserr.ErrInvalidGraph, "Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

// Zero-copy slice I/O via unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, want int) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if int(n) != want {
		return nil, accesserr.Wrapf(accesserr.ErrInvalidGraph, "length mismatch: got %d want %d", n, want)
	}
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), int(n)*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, want int) ([]int32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if int(n) != want {
		return nil, accesserr.Wrapf(accesserr.ErrInvalidGraph, "length mismatch: got %d want %d", n, want)
	}
	if n == 0 {
		return nil, nil
	}
	s := make([]int32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), int(n)*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}
