// Package audio plays the alert sound. It uses the beep library to play a
// WAV, OGG or MP3 file, or a generated tone when no file is configured.
package audio
