// Package transcode converts a downloaded artifact into a container the
// messaging platform plays inline.
//
// Audio is re-encoded to MP3 and video to H.264/AAC MP4 with ffmpeg. The
// wall-clock deadline scales with the source duration, progress is read from
// ffmpeg's -progress stream, and cancellation first sends SIGINT so ffmpeg can
// stop cleanly before it is killed. The source file is always removed, and a
// result that exceeds the size limit is discarded.
package transcode
