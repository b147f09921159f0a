package container

import (
	"testing"

	"github.com/odin-imager/odin/common"
	"github.com/stretchr/testify/assert"
)

func TestAllocMapRoundTripStartingUsed(t *testing.T) {
	a := assert.New(t)

	bm := common.NewBitMap(10)
	for i := 0; i < 4; i++ {
		bm.Set(i)
	}
	// clusters 4-5 free, 6-9 used
	for i := 6; i < 10; i++ {
		bm.Set(i)
	}

	encoded := EncodeAllocMap(bm, 10)
	runs, total, err := DecodeAllocMap(encoded)
	a.NoError(err)
	a.Equal(uint64(10), total)
	a.Equal([]Run{
		{Used: true, Clusters: 4},
		{Used: false, Clusters: 2},
		{Used: true, Clusters: 4},
	}, runs)
}

func TestAllocMapStartingFreeEncodesZeroLengthUsedRun(t *testing.T) {
	a := assert.New(t)

	bm := common.NewBitMap(6)
	for i := 3; i < 6; i++ {
		bm.Set(i)
	}

	encoded := EncodeAllocMap(bm, 6)
	runs, total, err := DecodeAllocMap(encoded)
	a.NoError(err)
	a.Equal(uint64(6), total)
	a.Equal([]Run{
		{Used: false, Clusters: 3},
		{Used: true, Clusters: 3},
	}, runs)
}

func TestAllocMapAllUsed(t *testing.T) {
	a := assert.New(t)

	bm := common.NewBitMap(5)
	for i := 0; i < 5; i++ {
		bm.Set(i)
	}
	encoded := EncodeAllocMap(bm, 5)
	runs, total, err := DecodeAllocMap(encoded)
	a.NoError(err)
	a.Equal(uint64(5), total)
	a.Equal([]Run{{Used: true, Clusters: 5}}, runs)
}

func TestDecodeAllocMapExpectingMismatch(t *testing.T) {
	a := assert.New(t)

	bm := common.NewBitMap(5)
	encoded := EncodeAllocMap(bm, 5)

	_, err := DecodeAllocMapExpecting(encoded, 6)
	a.Error(err)
	a.Equal(common.EErrorKind.AllocationMapCorrupt(), common.KindOf(err))
}

func TestClustersFor(t *testing.T) {
	a := assert.New(t)
	a.Equal(uint64(1), ClustersFor(1, 4096))
	a.Equal(uint64(1), ClustersFor(4096, 4096))
	a.Equal(uint64(2), ClustersFor(4097, 4096))
	a.Equal(uint64(0), ClustersFor(100, 0))
}

func TestBitmapFromRuns(t *testing.T) {
	a := assert.New(t)
	runs := []Run{
		{Used: true, Clusters: 2},
		{Used: false, Clusters: 1},
		{Used: true, Clusters: 2},
	}
	bm := BitmapFromRuns(runs, 5)
	a.True(bm.Test(0))
	a.True(bm.Test(1))
	a.False(bm.Test(2))
	a.True(bm.Test(3))
	a.True(bm.Test(4))
}
