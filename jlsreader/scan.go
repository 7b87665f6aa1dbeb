package jlsreader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
	"github.com/jls-format/jls/jlserrors"
)

const initialReadCap = 4096

// readChunk reads the chunk at the raw layer's current position,
// growing the payload buffer and retrying exactly as the raw layer's
// contract requires when it reports ErrTooBig. Returns the chunk's
// offset alongside its header and payload.
func (r *Reader) readChunk(capHint int) (int64, raw.Header, []byte, int, error) {
	offset := r.raw.Tell()
	cap := capHint
	for {
		h, payload, err := r.raw.Read(cap)
		if err == nil {
			return offset, h, payload, cap, nil
		}
		var tooBig *jlserrors.TooBigError
		if errors.As(err, &tooBig) {
			cap = int(tooBig.Required)
			continue
		}
		return offset, raw.Header{}, nil, cap, err
	}
}

// initialScan reads chunks sequentially from the first post-header
// offset until the user-data, source, and signal list heads have all
// been located, or end of file is reached. A missing category simply
// yields empty enumerations later — this never fails the open.
func (r *Reader) initialScan() error {
	if err := r.raw.Seek(raw.FileHeaderSize); err != nil {
		return err
	}
	capHint := initialReadCap
	haveUserData, haveSource, haveSignal := false, false, false
	for !haveUserData || !haveSource || !haveSignal {
		offset, h, _, newCap, err := r.readChunk(capHint)
		capHint = newCap
		if err != nil {
			if errors.Is(err, jlserrors.ErrEmpty) {
				break
			}
			level.Warn(r.logger).Log("msg", "malformed chunk during initial scan, stopping", "err", err)
			break
		}
		switch {
		case h.Tag == format.TagUserData && !haveUserData:
			r.userDataHead = offset
			haveUserData = true
		case h.Tag == format.TagSourceDef && !haveSource:
			r.sourceHead = offset
			haveSource = true
		case (h.Tag == format.TagSignalDef || format.IsTrackTag(h.Tag)) && !haveSignal:
			r.signalHead = offset
			haveSignal = true
		}
	}
	if !haveUserData || !haveSource || !haveSignal {
		level.Info(r.logger).Log("msg", "one or more list heads not found during initial scan",
			"user_data", haveUserData, "source", haveSource, "signal", haveSignal)
	}
	return nil
}

// scanSources walks the source list from sourceHead, parsing each
// source_def payload (64 reserved bytes then five terminated strings)
// into r.sources.
func (r *Reader) scanSources() error {
	if r.sourceHead == 0 {
		return nil
	}
	offset := r.sourceHead
	capHint := initialReadCap
	for offset != 0 {
		if err := r.raw.Seek(offset); err != nil {
			return err
		}
		_, h, payload, newCap, err := r.readChunk(capHint)
		capHint = newCap
		if err != nil {
			level.Warn(r.logger).Log("msg", "malformed source_def chunk, stopping source scan", "offset", offset, "err", err)
			return nil
		}
		sourceID, _ := format.SplitChunkMetaSignal(h.ChunkMeta)
		if int(sourceID) >= format.SourceCount {
			level.Warn(r.logger).Log("msg", "source_id out of range, skipping", "source_id", sourceID)
		} else if src, err := r.parseSourceDef(sourceID, payload); err != nil {
			level.Warn(r.logger).Log("msg", "failed to parse source_def, skipping", "source_id", sourceID, "err", err)
		} else {
			r.sources[sourceID] = src
		}
		offset = int64(h.ItemNext)
	}
	return nil
}

func (r *Reader) parseSourceDef(sourceID uint16, payload []byte) (*Source, error) {
	pr := newPayloadReader(payload)
	if err := pr.skip(64); err != nil {
		return nil, err
	}
	name, err := pr.str()
	if err != nil {
		return nil, err
	}
	vendor, err := pr.str()
	if err != nil {
		return nil, err
	}
	model, err := pr.str()
	if err != nil {
		return nil, err
	}
	version, err := pr.str()
	if err != nil {
		return nil, err
	}
	serial, err := pr.str()
	if err != nil {
		return nil, err
	}
	return &Source{
		SourceID:     sourceID,
		Name:         r.arena.store(name),
		Vendor:       r.arena.store(vendor),
		Model:        r.arena.store(model),
		Version:      r.arena.store(version),
		SerialNumber: r.arena.store(serial),
	}, nil
}

// scanSignals walks the shared signal/track list from signalHead,
// populating r.signals with each signal's definition and per-track
// def/head state.
func (r *Reader) scanSignals() error {
	if r.signalHead == 0 {
		return nil
	}
	offset := r.signalHead
	capHint := initialReadCap
	for offset != 0 {
		if err := r.raw.Seek(offset); err != nil {
			return err
		}
		chunkOffset, h, payload, newCap, err := r.readChunk(capHint)
		capHint = newCap
		if err != nil {
			level.Warn(r.logger).Log("msg", "malformed chunk, stopping signal scan", "offset", offset, "err", err)
			return nil
		}

		signalID, _ := format.SplitChunkMetaSignal(h.ChunkMeta)
		if int(signalID) >= format.SignalCount {
			level.Warn(r.logger).Log("msg", "signal_id out of range, skipping", "signal_id", signalID)
			offset = int64(h.ItemNext)
			continue
		}
		ss := r.signals[signalID]
		if ss == nil {
			ss = &signalState{tracks: make(map[format.TrackType]*trackState)}
			r.signals[signalID] = ss
		}

		switch {
		case h.Tag == format.TagSignalDef:
			sig, err := parseSignalDef(signalID, payload, r.arena)
			if err != nil {
				level.Warn(r.logger).Log("msg", "failed to parse signal_def, skipping", "signal_id", signalID, "err", err)
			} else {
				ss.signal = *sig
			}
		case format.IsTrackTag(h.Tag):
			tt := format.TrackTypeOf(h.Tag)
			kind := format.ChunkKindOf(h.Tag)
			ts := ss.tracks[tt]
			if ts == nil {
				ts = &trackState{trackType: tt}
				ss.tracks[tt] = ts
			}
			switch kind {
			case format.ChunkKindDef:
				ts.defOffset = chunkOffset
			case format.ChunkKindHead:
				ts.headOffset = chunkOffset
				if len(payload) >= format.SummaryLevelCount*8 {
					for i := 0; i < format.SummaryLevelCount; i++ {
						ts.headLevels[i] = binary.LittleEndian.Uint64(payload[i*8 : i*8+8])
					}
				}
			}
		}
		offset = int64(h.ItemNext)
	}
	return nil
}

func parseSignalDef(signalID uint16, payload []byte, arena *stringArena) (*Signal, error) {
	pr := newPayloadReader(payload)
	sourceID32, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("source_id: %w", err)
	}
	signalType, err := pr.u8()
	if err != nil {
		return nil, fmt.Errorf("signal_type: %w", err)
	}
	dataType, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("data_type: %w", err)
	}
	sampleRate, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("sample_rate: %w", err)
	}
	samplesPerData, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("samples_per_data: %w", err)
	}
	sampleDecimateFactor, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("sample_decimate_factor: %w", err)
	}
	entriesPerSummary, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("entries_per_summary: %w", err)
	}
	summaryDecimateFactor, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("summary_decimate_factor: %w", err)
	}
	utcRateAuto, err := pr.u32()
	if err != nil {
		return nil, fmt.Errorf("utc_rate_auto: %w", err)
	}
	name, err := pr.str()
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	siUnits, err := pr.str()
	if err != nil {
		return nil, fmt.Errorf("si_units: %w", err)
	}
	return &Signal{
		SignalID:              signalID,
		SourceID:              uint16(sourceID32),
		SignalType:            format.SignalType(signalType),
		DataType:              format.DataType(dataType),
		SampleRate:            sampleRate,
		SamplesPerData:        samplesPerData,
		SampleDecimateFactor:  sampleDecimateFactor,
		EntriesPerSummary:     entriesPerSummary,
		SummaryDecimateFactor: summaryDecimateFactor,
		UTCRateAuto:           utcRateAuto,
		Name:                  arena.store(name),
		SIUnits:               arena.store(siUnits),
	}, nil
}
