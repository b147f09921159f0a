// Copyright © odin-imager contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

// LogLevel controls which severities a logger will emit.
type LogLevel uint8

const (
	LogNone LogLevel = iota
	LogFatal
	LogPanic
	LogError
	LogWarning
	LogInfo
	LogDebug
)

var ELogLevel = LogLevel(LogNone)

func (LogLevel) None() LogLevel    { return LogLevel(LogNone) }
func (LogLevel) Fatal() LogLevel   { return LogLevel(LogFatal) }
func (LogLevel) Panic() LogLevel   { return LogLevel(LogPanic) }
func (LogLevel) Error() LogLevel   { return LogLevel(LogError) }
func (LogLevel) Warning() LogLevel { return LogLevel(LogWarning) }
func (LogLevel) Info() LogLevel    { return LogLevel(LogInfo) }
func (LogLevel) Debug() LogLevel   { return LogLevel(LogDebug) }

func (ll *LogLevel) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(ll), s, true, true)
	if err == nil {
		*ll = val.(LogLevel)
	}
	return err
}

func (ll LogLevel) String() string {
	switch ll {
	case ELogLevel.None():
		return "NONE"
	case ELogLevel.Fatal():
		return "FATAL"
	case ELogLevel.Panic():
		return "PANIC"
	case ELogLevel.Error():
		return "ERR"
	case ELogLevel.Warning():
		return "WARN"
	case ELogLevel.Info():
		return "INFO"
	case ELogLevel.Debug():
		return "DBG"
	default:
		return enum.StringInt(ll, reflect.TypeOf(ll))
	}
}

// CompressionFormat identifies the codec a container's payload is stored under.
type CompressionFormat uint32

const (
	compressionNone CompressionFormat = iota
	compressionGZip
	compressionBZip2
	compressionLZ4
	compressionLZ4HC
	compressionZStd
)

var ECompressionFormat = CompressionFormat(compressionNone)

func (CompressionFormat) None() CompressionFormat  { return CompressionFormat(compressionNone) }
func (CompressionFormat) GZip() CompressionFormat  { return CompressionFormat(compressionGZip) }
func (CompressionFormat) BZip2() CompressionFormat { return CompressionFormat(compressionBZip2) }
func (CompressionFormat) LZ4() CompressionFormat   { return CompressionFormat(compressionLZ4) }
func (CompressionFormat) LZ4HC() CompressionFormat { return CompressionFormat(compressionLZ4HC) }
func (CompressionFormat) ZStd() CompressionFormat  { return CompressionFormat(compressionZStd) }

func (cf *CompressionFormat) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(cf), s, true, true)
	if err == nil {
		*cf = val.(CompressionFormat)
	}
	return err
}

func (cf CompressionFormat) String() string {
	return enum.StringInt(cf, reflect.TypeOf(cf))
}

// Streaming reports whether the format needs a separate codec stage at all.
func (cf CompressionFormat) Streaming() bool {
	return cf != ECompressionFormat.None()
}

// VolumeKind distinguishes a single-partition image from a whole-disk image.
type VolumeKind uint32

const (
	volumeKindPartition VolumeKind = iota
	volumeKindWholeDisk
)

var EVolumeKind = VolumeKind(volumeKindPartition)

func (VolumeKind) Partition() VolumeKind { return VolumeKind(volumeKindPartition) }
func (VolumeKind) WholeDisk() VolumeKind { return VolumeKind(volumeKindWholeDisk) }

func (vk *VolumeKind) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(vk), s, true, true)
	if err == nil {
		*vk = val.(VolumeKind)
	}
	return err
}

func (vk VolumeKind) String() string {
	return enum.StringInt(vk, reflect.TypeOf(vk))
}

// SessionState is the pipeline coordinator's state machine position (spec §4.J).
type SessionState uint8

const (
	sessionIdle SessionState = iota
	sessionRunning
	sessionFinalizing
	sessionCancelling
	sessionDone
	sessionFailed
	sessionCancelled
)

var ESessionState = SessionState(sessionIdle)

func (SessionState) Idle() SessionState        { return SessionState(sessionIdle) }
func (SessionState) Running() SessionState     { return SessionState(sessionRunning) }
func (SessionState) Finalizing() SessionState  { return SessionState(sessionFinalizing) }
func (SessionState) Cancelling() SessionState  { return SessionState(sessionCancelling) }
func (SessionState) Done() SessionState        { return SessionState(sessionDone) }
func (SessionState) Failed() SessionState      { return SessionState(sessionFailed) }
func (SessionState) Cancelled() SessionState   { return SessionState(sessionCancelled) }

func (ss SessionState) String() string {
	return enum.StringInt(ss, reflect.TypeOf(ss))
}

// ErrorKind names the fatal-error taxonomy from spec §7. Values are contracts,
// not exhaustive Go types: callers switch on Kind(), not on the underlying error.
type ErrorKind uint32

const (
	errNone ErrorKind = iota
	errDeviceOpen
	errDeviceIO
	errAlignment
	errFileOpen
	errFileIO
	errPartMissing
	errHeaderMagicMismatch
	errHeaderVersionUnsupported
	errHeaderCorrupt
	errAllocationMapCorrupt
	errCompression
	errDecompression
	errChunkSizeTooSmall
	errChunkPoolExhausted
	errCancelled
	errVerifyMismatch
	errUnsupportedShrink
)

var EErrorKind = ErrorKind(errNone)

func (ErrorKind) None() ErrorKind                    { return ErrorKind(errNone) }
func (ErrorKind) DeviceOpen() ErrorKind               { return ErrorKind(errDeviceOpen) }
func (ErrorKind) DeviceIO() ErrorKind                 { return ErrorKind(errDeviceIO) }
func (ErrorKind) Alignment() ErrorKind                { return ErrorKind(errAlignment) }
func (ErrorKind) FileOpen() ErrorKind                 { return ErrorKind(errFileOpen) }
func (ErrorKind) FileIO() ErrorKind                   { return ErrorKind(errFileIO) }
func (ErrorKind) PartMissing() ErrorKind              { return ErrorKind(errPartMissing) }
func (ErrorKind) HeaderMagicMismatch() ErrorKind      { return ErrorKind(errHeaderMagicMismatch) }
func (ErrorKind) HeaderVersionUnsupported() ErrorKind { return ErrorKind(errHeaderVersionUnsupported) }
func (ErrorKind) HeaderCorrupt() ErrorKind             { return ErrorKind(errHeaderCorrupt) }
func (ErrorKind) AllocationMapCorrupt() ErrorKind      { return ErrorKind(errAllocationMapCorrupt) }
func (ErrorKind) Compression() ErrorKind               { return ErrorKind(errCompression) }
func (ErrorKind) Decompression() ErrorKind             { return ErrorKind(errDecompression) }
func (ErrorKind) ChunkSizeTooSmall() ErrorKind         { return ErrorKind(errChunkSizeTooSmall) }
func (ErrorKind) ChunkPoolExhausted() ErrorKind        { return ErrorKind(errChunkPoolExhausted) }
func (ErrorKind) Cancelled() ErrorKind                 { return ErrorKind(errCancelled) }
func (ErrorKind) VerifyMismatch() ErrorKind            { return ErrorKind(errVerifyMismatch) }
func (ErrorKind) UnsupportedShrink() ErrorKind         { return ErrorKind(errUnsupportedShrink) }

func (ek ErrorKind) String() string {
	return enum.StringInt(ek, reflect.TypeOf(ek))
}
