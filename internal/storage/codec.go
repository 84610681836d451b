package storage

import (
	"encoding/json"
	"errors"

	"phylon/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps records written by this build.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeEpochs(epochs []model.EpochRecord) ([]byte, error) {
	return json.Marshal(epochs)
}

func DecodeEpochs(data []byte) ([]model.EpochRecord, error) {
	var epochs []model.EpochRecord
	if err := json.Unmarshal(data, &epochs); err != nil {
		return nil, err
	}
	return epochs, nil
}

func EncodeFront(front []model.FrontMember) ([]byte, error) {
	return json.Marshal(front)
}

func DecodeFront(data []byte) ([]model.FrontMember, error) {
	var front []model.FrontMember
	if err := json.Unmarshal(data, &front); err != nil {
		return nil, err
	}
	for _, member := range front {
		if err := checkVersion(member.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return front, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
