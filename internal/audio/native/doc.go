// Package native captures and plays audio in-process through miniaudio
// (malgo) and oto. It needs cgo and is only built with the "native" tag;
// the default build shells out to ffmpeg instead.
package native
