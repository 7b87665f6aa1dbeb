package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
	"github.com/jls-format/jls/jlserrors"
)

type tagStats struct {
	count      uint64
	bytes      uint64
	digest     *xxhash.Digest
	headerOnly uint64 // chunks whose payload was empty (def/sentinel chunks)
}

const profileInitialCap = 4096

// runProfile walks every chunk in the file physically, front to back,
// tallying per-tag counts, total on-disk bytes, and a rolling xxhash
// digest of each tag's payload bytes — a cheap way to tell two files
// with the same chunk-tag histogram apart without a byte-for-byte diff.
func runProfile(logger log.Logger, path string) error {
	rf, err := raw.Open(path, raw.ModeRead)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer rf.Close()

	id, err := rf.FileID()
	if err != nil {
		return fmt.Errorf("read file id: %w", err)
	}

	if err := rf.Seek(raw.FileHeaderSize); err != nil {
		return fmt.Errorf("seek to first chunk: %w", err)
	}

	stats := make(map[format.Tag]*tagStats)
	cap := profileInitialCap
	var totalChunks, totalBytes uint64
	for {
		h, payload, err := rf.Read(cap)
		if err != nil {
			var tooBig *jlserrors.TooBigError
			if errors.As(err, &tooBig) {
				cap = int(tooBig.Required)
				continue
			}
			if errors.Is(err, jlserrors.ErrEmpty) {
				break
			}
			level.Warn(logger).Log("msg", "stopping profile scan on malformed chunk", "err", err)
			break
		}

		st := stats[h.Tag]
		if st == nil {
			st = &tagStats{digest: xxhash.New()}
			stats[h.Tag] = st
		}
		st.count++
		chunkBytes := uint64(raw.HeaderSize) + uint64(len(payload)) + 4
		st.bytes += chunkBytes
		if len(payload) == 0 {
			st.headerOnly++
		} else {
			st.digest.Write(payload)
		}
		totalChunks++
		totalBytes += chunkBytes
	}

	fmt.Printf("file:     %s\n", path)
	fmt.Printf("file_id:  %s\n", id.String())
	fmt.Printf("chunks:   %d\n", totalChunks)
	fmt.Printf("bytes:    %d\n\n", totalBytes)

	tags := make([]format.Tag, 0, len(stats))
	for t := range stats {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "tag\tcount\tbytes\tempty\tdigest")
	for _, t := range tags {
		st := stats[t]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%016x\n", tagName(t), st.count, st.bytes, st.headerOnly, st.digest.Sum64())
	}
	return tw.Flush()
}

func tagName(t format.Tag) string {
	switch t {
	case format.TagSourceDef:
		return "source_def"
	case format.TagSignalDef:
		return "signal_def"
	case format.TagUserData:
		return "user_data"
	default:
		if format.IsTrackTag(t) {
			return fmt.Sprintf("track(%v,%v)", format.TrackTypeOf(t), format.ChunkKindOf(t))
		}
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}
