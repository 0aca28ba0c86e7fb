// Package audiocore provides the in-memory PCM model used by remix: buffers,
// time positions, quanta and the renderer that recombines them.
//
// # Buffers
//
// A Buffer holds interleaved signed 16-bit samples. Buffers may be created
// deferred, in which case the first access decodes the raw input through a
// Decoder. Buffers with destructive reads release every frame before the start
// of a slice once it has been read; the released count is tracked as the buffer's
// offset and all positions stay relative to the original time origin.
//
// # Quanta and rendering
//
// A Quantum is a time interval over a PcmSource. A QuantumList renders its
// members in order into an accumulator Buffer. Lists that reference more than
// one source are rendered once per source, each pass starting at the same
// output position, so the sources are mixed rather than concatenated.
//
// # Streams
//
// A Stream exposes a forward-only PCMPipe through the same slicing contract as
// Buffer. Positions before the stream cursor cannot be read again.
//
// # Concurrency
//
// Buffer and Stream are not safe for concurrent use. A buffer may be loaded on
// one goroutine and handed off to another once Load has returned.
package audiocore
