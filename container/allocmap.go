package container

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/odin-imager/odin/common"
)

// Run is one alternating-state run in a decoded allocation map: Clusters
// consecutive clusters that are all used, or all free.
type Run struct {
	Used     bool
	Clusters uint64
}

// EncodeAllocMap serializes bitmap (one bit per cluster, up to numClusters
// bits significant) as a varint run-length stream. The stream always starts
// with a used-run length (which may be zero, if the volume begins with free
// clusters), then alternates free/used/free/... until numClusters clusters
// have been accounted for.
func EncodeAllocMap(bitmap common.Bitmap, numClusters uint64) []byte {
	var buf bytes.Buffer
	varint := make([]byte, binary.MaxVarintLen64)

	used := true
	var run uint64
	for i := uint64(0); i < numClusters; i++ {
		bitIsUsed := bitmap.Test(int(i))
		if bitIsUsed == used {
			run++
			continue
		}
		n := binary.PutUvarint(varint, run)
		buf.Write(varint[:n])
		used = !used
		run = 1
	}
	n := binary.PutUvarint(varint, run)
	buf.Write(varint[:n])

	return buf.Bytes()
}

// DecodeAllocMap parses a run-length stream produced by EncodeAllocMap,
// returning the alternating-state runs and the total cluster count the
// stream accounts for. The caller must compare that count against the
// header's expected cluster count; a mismatch means AllocationMapCorrupt.
func DecodeAllocMap(data []byte) (runs []Run, totalClusters uint64, err error) {
	r := bytes.NewReader(data)
	used := true
	for {
		n, readErr := binary.ReadUvarint(r)
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, 0, common.NewPipelineError(common.EErrorKind.AllocationMapCorrupt(), readErr, "reading run-length varint")
		}
		if n > 0 {
			runs = append(runs, Run{Used: used, Clusters: n})
			totalClusters += n
		}
		used = !used
	}
	return runs, totalClusters, nil
}

// DecodeAllocMapExpecting decodes data and verifies the total matches
// expectedClusters exactly, returning AllocationMapCorrupt otherwise.
func DecodeAllocMapExpecting(data []byte, expectedClusters uint64) ([]Run, error) {
	runs, total, err := DecodeAllocMap(data)
	if err != nil {
		return nil, err
	}
	if total != expectedClusters {
		return nil, common.NewPipelineError(common.EErrorKind.AllocationMapCorrupt(), nil, "decoded %d clusters, header declares %d", total, expectedClusters)
	}
	return runs, nil
}

// BitmapFromRuns rebuilds a common.Bitmap from decoded runs, for callers
// (e.g. the writer stage in restore mode) that need random-access Test.
func BitmapFromRuns(runs []Run, numClusters uint64) common.Bitmap {
	b := common.NewBitMap(int(numClusters))
	var i uint64
	for _, run := range runs {
		if run.Used {
			for j := uint64(0); j < run.Clusters; j++ {
				b.Set(int(i + j))
			}
		}
		i += run.Clusters
	}
	return b
}

// ClustersFor returns the number of clusters needed to cover a volume of
// volumeSize bytes at clusterSize bytes per cluster, rounding up.
func ClustersFor(volumeSize, clusterSize uint64) uint64 {
	if clusterSize == 0 {
		return 0
	}
	return (volumeSize + clusterSize - 1) / clusterSize
}

// ReadAllocMapAfterHeader consumes whatever sits between the end of h's
// fixed header+comment (which ReadHeader has already read) and h.DataOffset,
// returning the raw allocation-map payload if h.AllocMapLength > 0 (nil
// otherwise). The caller is left positioned exactly at h.DataOffset,
// matching Write's layout convention of no gap between the allocation map
// and the volume data that follows it.
func ReadAllocMapAfterHeader(r io.Reader, h *Header) ([]byte, error) {
	consumed := uint64(h.HeaderSize())
	if h.AllocMapLength == 0 {
		if gap := h.DataOffset - consumed; gap > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(gap)); err != nil {
				return nil, common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), err, "skipping header padding")
			}
		}
		return nil, nil
	}

	if gap := h.AllocMapOffset - consumed; gap > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(gap)); err != nil {
			return nil, common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), err, "skipping header padding")
		}
	}

	data := make([]byte, h.AllocMapLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, common.NewPipelineError(common.EErrorKind.AllocationMapCorrupt(), err, "reading allocation map payload")
	}

	if gap := h.DataOffset - (h.AllocMapOffset + h.AllocMapLength); gap > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(gap)); err != nil {
			return nil, common.NewPipelineError(common.EErrorKind.HeaderCorrupt(), err, "skipping post-allocation-map padding")
		}
	}
	return data, nil
}

// UsedBytes sums the byte length of every "used" run, i.e. exactly how many
// bytes of volume data a used-blocks-only backup actually wrote to (and a
// matching restore must read back from) the container.
func UsedBytes(runs []Run, clusterSize uint64) uint64 {
	var total uint64
	for _, run := range runs {
		if run.Used {
			total += run.Clusters * clusterSize
		}
	}
	return total
}
