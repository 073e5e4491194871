// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package meta holds the metadata a client declares for an upload.
// The Uploadable is immutable once a pre-request has been accepted;
// every later chunk refers back to the copy stored in the session.
package meta

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/roadmetrics/collector/pkg/errtypes"
)

const (
	// CurrentFormatVersion is the only binary format version accepted on ingest.
	CurrentFormatVersion = 3

	// MinLocationCount is the minimum number of geo locations a measurement
	// must carry to be worth storing.
	MinLocationCount = 2

	// FileTypeMeasurement is the file type under which measurement blobs are indexed.
	FileTypeMeasurement = "bin"

	// FileTypeAttachment is the file type under which attachment blobs are indexed.
	FileTypeAttachment = "att"
)

var validate = validator.New()

// GeoLocation is a single captured position.
type GeoLocation struct {
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Uploadable is the caller supplied description of one upload. The field
// set mirrors the wire format: the same names appear in the pre-request
// JSON body and as headers on chunk PUTs.
type Uploadable struct {
	DeviceID      string  `json:"deviceId" mapstructure:"deviceId" validate:"required,uuid"`
	MeasurementID int64   `json:"measurementId" mapstructure:"measurementId" validate:"required,gt=0"`
	DeviceType    string  `json:"deviceType" mapstructure:"deviceType" validate:"required,max=30"`
	OSVersion     string  `json:"osVersion" mapstructure:"osVersion" validate:"required,max=30"`
	AppVersion    string  `json:"appVersion" mapstructure:"appVersion" validate:"required,max=30"`
	Length        float64 `json:"length" mapstructure:"length" validate:"gte=0"`
	LocationCount int64   `json:"locationCount" mapstructure:"locationCount" validate:"gte=0"`
	StartLocLat   float64 `json:"startLocLat" mapstructure:"startLocLat" validate:"gte=-90,lte=90"`
	StartLocLon   float64 `json:"startLocLon" mapstructure:"startLocLon" validate:"gte=-180,lte=180"`
	StartLocTS    int64   `json:"startLocTS" mapstructure:"startLocTS"`
	EndLocLat     float64 `json:"endLocLat" mapstructure:"endLocLat" validate:"gte=-90,lte=90"`
	EndLocLon     float64 `json:"endLocLon" mapstructure:"endLocLon" validate:"gte=-180,lte=180"`
	EndLocTS      int64   `json:"endLocTS" mapstructure:"endLocTS"`
	Modality      string  `json:"modality" mapstructure:"modality" validate:"required,max=30"`
	FormatVersion int     `json:"formatVersion" mapstructure:"formatVersion"`

	// Attachment fields. An upload is an attachment upload iff AttachmentID > 0.
	AttachmentID int64 `json:"attachmentId,omitempty" mapstructure:"attachmentId" validate:"gte=0"`
	LogCount     int64 `json:"logCount,omitempty" mapstructure:"logCount" validate:"gte=0"`
	ImageCount   int64 `json:"imageCount,omitempty" mapstructure:"imageCount" validate:"gte=0"`
	VideoCount   int64 `json:"videoCount,omitempty" mapstructure:"videoCount" validate:"gte=0"`
	FilesSize    int64 `json:"filesSize,omitempty" mapstructure:"filesSize"`
}

// FromJSON decodes an Uploadable from a pre-request body.
func FromJSON(r io.Reader) (*Uploadable, error) {
	u := &Uploadable{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(u); err != nil {
		return nil, errtypes.Unparsable(err.Error())
	}
	return u, nil
}

// headerFields lists the wire names parsed by FromHeaders.
var headerFields = []string{
	"deviceId", "measurementId", "deviceType", "osVersion", "appVersion",
	"length", "locationCount", "startLocLat", "startLocLon", "startLocTS",
	"endLocLat", "endLocLon", "endLocTS", "modality", "formatVersion",
	"attachmentId", "logCount", "imageCount", "videoCount", "filesSize",
}

// FromHeaders decodes an Uploadable mirrored into request headers.
// The second return value reports whether metadata headers were present
// at all; chunk PUTs without them fall back to the session copy.
func FromHeaders(h http.Header) (*Uploadable, bool, error) {
	if h.Get("deviceId") == "" {
		return nil, false, nil
	}
	u := &Uploadable{}
	for _, f := range headerFields {
		v := h.Get(f)
		if v == "" {
			continue
		}
		if err := u.setField(f, v); err != nil {
			return nil, true, err
		}
	}
	return u, true, nil
}

func (u *Uploadable) setField(name, v string) error {
	bad := func(err error) error {
		return errtypes.Unparsable("header " + name + ": " + err.Error())
	}
	switch name {
	case "deviceId":
		u.DeviceID = v
	case "deviceType":
		u.DeviceType = v
	case "osVersion":
		u.OSVersion = v
	case "appVersion":
		u.AppVersion = v
	case "modality":
		u.Modality = v
	case "length":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bad(err)
		}
		u.Length = f
	case "startLocLat", "startLocLon", "endLocLat", "endLocLon":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bad(err)
		}
		switch name {
		case "startLocLat":
			u.StartLocLat = f
		case "startLocLon":
			u.StartLocLon = f
		case "endLocLat":
			u.EndLocLat = f
		case "endLocLon":
			u.EndLocLon = f
		}
	case "formatVersion":
		i, err := strconv.Atoi(v)
		if err != nil {
			return bad(err)
		}
		u.FormatVersion = i
	default:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return bad(err)
		}
		switch name {
		case "measurementId":
			u.MeasurementID = i
		case "locationCount":
			u.LocationCount = i
		case "startLocTS":
			u.StartLocTS = i
		case "endLocTS":
			u.EndLocTS = i
		case "attachmentId":
			u.AttachmentID = i
		case "logCount":
			u.LogCount = i
		case "imageCount":
			u.ImageCount = i
		case "videoCount":
			u.VideoCount = i
		case "filesSize":
			u.FilesSize = i
		}
	}
	return nil
}

// Validate checks every field constraint. The format version gets its
// own error kinds so clients can tell "upgrade" apart from "fix input".
func (u *Uploadable) Validate() error {
	if u.FormatVersion < CurrentFormatVersion {
		return errtypes.DeprecatedFormatVersion(strconv.Itoa(u.FormatVersion))
	}
	if u.FormatVersion != CurrentFormatVersion {
		return errtypes.UnknownFormatVersion(strconv.Itoa(u.FormatVersion))
	}
	if err := validate.Struct(u); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			f := verrs[0]
			return errtypes.InvalidMetaData(f.Field() + " violates " + f.Tag())
		}
		return errtypes.InvalidMetaData(err.Error())
	}
	if u.HasAttachment() && u.LogCount == 0 && u.ImageCount == 0 && u.VideoCount == 0 {
		return errtypes.InvalidMetaData("attachment upload declares no files")
	}
	return nil
}

// CheckSkip applies the semantic skip policy: payloads that validate but
// are not worth storing are rejected before a session is allocated.
func (u *Uploadable) CheckSkip() error {
	if u.LocationCount < MinLocationCount {
		return errtypes.TooFewLocations(strconv.FormatInt(u.LocationCount, 10))
	}
	if u.HasAttachment() && u.FilesSize <= 0 {
		return errtypes.SkipUpload("attachment upload declares empty files")
	}
	return nil
}

// HasAttachment reports whether this upload carries an attachment file
// rather than the measurement binary itself.
func (u *Uploadable) HasAttachment() bool {
	return u.AttachmentID > 0
}

// FileType returns the file type used in the storage key.
func (u *Uploadable) FileType() string {
	if u.HasAttachment() {
		return FileTypeAttachment
	}
	return FileTypeMeasurement
}

// StartLocation returns the first captured position.
func (u *Uploadable) StartLocation() GeoLocation {
	return GeoLocation{Timestamp: u.StartLocTS, Latitude: u.StartLocLat, Longitude: u.StartLocLon}
}

// EndLocation returns the last captured position.
func (u *Uploadable) EndLocation() GeoLocation {
	return GeoLocation{Timestamp: u.EndLocTS, Latitude: u.EndLocLat, Longitude: u.EndLocLon}
}
