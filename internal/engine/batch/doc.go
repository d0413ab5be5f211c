// Package batch moves variant records through the dispatcher in bounded chunks.
//
// It holds the two pieces of the pipeline that do not touch processes:
//   - the Splitter, a pure function that sizes each sub-chunk handed to a
//     worker so that early sub-chunks are large and later ones taper off
//   - the Processor, which pulls chunks of bufferSize records from a Source,
//     dispatches them one at a time and forwards the ordered result to a Sink
//
// Memory use is O(bufferSize) regardless of input size.
package batch
