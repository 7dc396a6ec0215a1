package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"unicode/utf8"

	"github.com/normanking/tutorbridge/internal/dataflow"
	"github.com/normanking/tutorbridge/internal/model"
)

// DefaultSampleRate applies to inbound audio without a sample_rate entry.
const DefaultSampleRate = 16000

var errNotText = errors.New("payload is not valid UTF-8 text")

// payloadFromWire maps pipeline data to a UI payload. Float lists become
// audio, JSON-looking text becomes JSON, other text stays text and
// non-UTF-8 bytes are binary.
func payloadFromWire(d dataflow.Data, meta model.Metadata) (model.Payload, error) {
	switch d.Kind {
	case dataflow.DataFloats:
		return audioFromWire(d.Floats, meta), nil
	case dataflow.DataString:
		return textOrJSON(d.Str), nil
	case dataflow.DataBytes:
		if len(d.Bytes) == 0 {
			return model.Empty{}, nil
		}
		if !utf8.Valid(d.Bytes) {
			return model.Binary(append([]byte(nil), d.Bytes...)), nil
		}
		return textOrJSON(string(d.Bytes)), nil
	default:
		return nil, d.Validate()
	}
}

func textOrJSON(s string) model.Payload {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return model.JSON(trimmed)
	}
	return model.Text(s)
}

func audioFromWire(samples []float32, meta model.Metadata) model.Audio {
	return model.Audio{
		Samples:       append([]float32(nil), samples...),
		SampleRate:    metaInt(meta, model.MetaSampleRate, DefaultSampleRate),
		Channels:      metaInt(meta, model.MetaChannels, 1),
		ParticipantID: meta.Value(model.MetaParticipantID),
		QuestionID:    meta.Value(model.MetaQuestionID),
	}
}

func metaInt(meta model.Metadata, key string, fallback int) int {
	v, ok := meta.Get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		if f, ferr := strconv.ParseFloat(v, 64); ferr == nil && f > 0 {
			return int(f)
		}
		return fallback
	}
	return n
}

// textContent extracts chat text from pipeline data. JSON strings are
// unquoted and objects contribute their "text" or "content" field.
func textContent(d dataflow.Data) (string, error) {
	text, ok := dataflow.TextContent(d)
	if !ok {
		return "", errNotText
	}
	return text, nil
}

func controlJSON(c model.Control) (dataflow.Data, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return dataflow.Data{}, err
	}
	return dataflow.String(string(raw)), nil
}

func audioParams(a model.Audio) dataflow.Params {
	channels := a.Channels
	if channels <= 0 {
		channels = 1
	}
	p := dataflow.Params{
		model.MetaSampleRate: a.SampleRate,
		model.MetaChannels:   channels,
	}
	if a.ParticipantID != "" {
		p[model.MetaParticipantID] = a.ParticipantID
	}
	if a.QuestionID != "" {
		p[model.MetaQuestionID] = a.QuestionID
	}
	return p
}
