package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"formulaevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the version stamp written on every persisted record.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeValidationReport(r model.ValidationReport) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeValidationReport(data []byte) (model.ValidationReport, error) {
	var report model.ValidationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return model.ValidationReport{}, err
	}
	if err := checkVersion(report.VersionedRecord); err != nil {
		return model.ValidationReport{}, err
	}
	return report, nil
}

func EncodeHistory(h model.EvolutionHistory) ([]byte, error) {
	stamp(&h.VersionedRecord)
	return json.Marshal(h)
}

func DecodeHistory(data []byte) (model.EvolutionHistory, error) {
	var history model.EvolutionHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return model.EvolutionHistory{}, err
	}
	if err := checkVersion(history.VersionedRecord); err != nil {
		return model.EvolutionHistory{}, err
	}
	return history, nil
}

func EncodeInvariantSet(s model.InvariantSet) ([]byte, error) {
	stamp(&s.VersionedRecord)
	return json.Marshal(s)
}

func DecodeInvariantSet(data []byte) (model.InvariantSet, error) {
	var set model.InvariantSet
	if err := json.Unmarshal(data, &set); err != nil {
		return model.InvariantSet{}, err
	}
	if err := checkVersion(set.VersionedRecord); err != nil {
		return model.InvariantSet{}, err
	}
	return set, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

// stamp fills an unset version with the current one. Records carrying an
// explicit foreign version are written as-is and rejected on read.
func stamp(v *model.VersionedRecord) {
	if v.SchemaVersion == 0 && v.CodecVersion == 0 {
		*v = CurrentVersion()
	}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
