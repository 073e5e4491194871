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

package meta

import "strconv"

// StorageKey identifies one stored measurement or attachment.
// AttachmentID is zero for measurement uploads.
type StorageKey struct {
	DeviceID      string
	MeasurementID int64
	AttachmentID  int64
	FileType      string
}

// Key returns the storage key for this upload.
func (u *Uploadable) Key() StorageKey {
	k := StorageKey{
		DeviceID:      u.DeviceID,
		MeasurementID: u.MeasurementID,
		FileType:      u.FileType(),
	}
	if u.HasAttachment() {
		k.AttachmentID = u.AttachmentID
	}
	return k
}

// Document builds the metadata document persisted next to the blob.
// The key layout is GeoJSON aware: locations become Point geometries in
// [lon, lat] order, timestamps stay 64 bit integers.
func (u *Uploadable) Document(userID string) map[string]interface{} {
	md := map[string]interface{}{
		"deviceId":      u.DeviceID,
		"measurementId": strconv.FormatInt(u.MeasurementID, 10),
		"userId":        userID,
		"osVersion":     u.OSVersion,
		"deviceType":    u.DeviceType,
		"appVersion":    u.AppVersion,
		"length":        u.Length,
		"locationCount": u.LocationCount,
		"modality":      u.Modality,
		"formatVersion": u.FormatVersion,
	}
	if u.HasAttachment() {
		md["attachmentId"] = u.AttachmentID
		md["logCount"] = u.LogCount
		md["imageCount"] = u.ImageCount
		md["videoCount"] = u.VideoCount
		md["filesSize"] = u.FilesSize
	}
	doc := map[string]interface{}{
		"metadata": md,
		"start":    geoPoint(u.StartLocation()),
		"end":      geoPoint(u.EndLocation()),
	}
	return doc
}

func geoPoint(l GeoLocation) map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"type":        "Point",
			"coordinates": []float64{l.Longitude, l.Latitude},
		},
		"timestamp": l.Timestamp,
	}
}
