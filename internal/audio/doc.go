// Package audio owns microphone capture and WAV encoding.
// A Controller drives one recording session at a time over a Device, decodes the
// captured container into a PCMBuffer, and EncodeWAV turns PCM into a 16-bit WAV file.
package audio
