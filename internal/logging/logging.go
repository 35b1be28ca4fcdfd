package logging

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Atharv714/Safe-Passage/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Writer returns console, teed into a size-rotated file when cfg.File is set.
// The closer releases the file.
func Writer(cfg config.LogConfig, console io.Writer) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return console, nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if console == nil {
		return file, file
	}
	return io.MultiWriter(console, file), file
}

// Setup points the standard logger at Writer's output.
func Setup(cfg config.LogConfig, console io.Writer) io.Closer {
	w, closer := Writer(cfg, console)
	log.SetOutput(w)
	return closer
}
