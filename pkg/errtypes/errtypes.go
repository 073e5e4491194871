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

// Package errtypes contains definitions for the error kinds the upload
// protocol distinguishes. It would have been nice to call this package
// errors, but that clashes with github.com/pkg/errors.
package errtypes

// NotFound is the error to use when a resource is not found.
type NotFound string

func (e NotFound) Error() string { return "error: not found: " + string(e) }

// IsNotFound implements the IsNotFound interface.
func (e NotFound) IsNotFound() {}

// Unparsable is the error to use when a request carries syntactically
// invalid metadata or an invalid Content-Range header.
type Unparsable string

func (e Unparsable) Error() string { return "error: unparsable: " + string(e) }

// IsUnparsable implements the IsUnparsable interface.
func (e Unparsable) IsUnparsable() {}

// InvalidMetaData is the error to use when a metadata field is missing
// or out of its allowed range.
type InvalidMetaData string

func (e InvalidMetaData) Error() string { return "error: invalid metadata: " + string(e) }

// IsInvalidMetaData implements the IsInvalidMetaData interface.
func (e InvalidMetaData) IsInvalidMetaData() {}

// DeprecatedFormatVersion is the error to use when a client sends data in
// a format version older than the currently supported one.
type DeprecatedFormatVersion string

func (e DeprecatedFormatVersion) Error() string {
	return "error: deprecated format version: " + string(e)
}

// IsDeprecatedFormatVersion implements the IsDeprecatedFormatVersion interface.
func (e DeprecatedFormatVersion) IsDeprecatedFormatVersion() {}

// UnknownFormatVersion is the error to use when a client sends data in a
// format version this server does not know about.
type UnknownFormatVersion string

func (e UnknownFormatVersion) Error() string {
	return "error: unknown format version: " + string(e)
}

// IsUnknownFormatVersion implements the IsUnknownFormatVersion interface.
func (e UnknownFormatVersion) IsUnknownFormatVersion() {}

// PayloadTooLarge is the error to use when the declared upload size
// exceeds the configured payload limit.
type PayloadTooLarge string

func (e PayloadTooLarge) Error() string { return "error: payload too large: " + string(e) }

// IsPayloadTooLarge implements the IsPayloadTooLarge interface.
func (e PayloadTooLarge) IsPayloadTooLarge() {}

// TooFewLocations is the error to use when a measurement carries less
// than the minimum number of geo locations.
type TooFewLocations string

func (e TooFewLocations) Error() string { return "error: too few locations: " + string(e) }

// IsTooFewLocations implements the IsTooFewLocations interface.
func (e TooFewLocations) IsTooFewLocations() {}

// SkipUpload is the error to use when a semantic skip predicate decides
// the payload is not worth uploading.
type SkipUpload string

func (e SkipUpload) Error() string { return "error: skip upload: " + string(e) }

// IsSkipUpload implements the IsSkipUpload interface.
func (e SkipUpload) IsSkipUpload() {}

// SessionExpired is the error to use when a chunk arrives for a session
// that no longer exists.
type SessionExpired string

func (e SessionExpired) Error() string { return "error: session expired: " + string(e) }

// IsSessionExpired implements the IsSessionExpired interface.
func (e SessionExpired) IsSessionExpired() {}

// UnexpectedContentRange is the error to use when a chunk's offset does
// not line up with the bytes accepted so far.
type UnexpectedContentRange string

func (e UnexpectedContentRange) Error() string {
	return "error: unexpected content range: " + string(e)
}

// IsUnexpectedContentRange implements the IsUnexpectedContentRange interface.
func (e UnexpectedContentRange) IsUnexpectedContentRange() {}

// Conflict is the error to use when a measurement with the same key was
// already stored.
type Conflict string

func (e Conflict) Error() string { return "error: conflict: " + string(e) }

// IsConflict implements the IsConflict interface.
func (e Conflict) IsConflict() {}

// ContentRangeMismatch is the error to use when the accumulated chunk
// size does not equal the declared total at completion time.
type ContentRangeMismatch string

func (e ContentRangeMismatch) Error() string {
	return "error: content range does not match file size: " + string(e)
}

// IsContentRangeMismatch implements the IsContentRangeMismatch interface.
func (e ContentRangeMismatch) IsContentRangeMismatch() {}

// InvalidCredentials is the error to use when receiving an invalid or
// missing bearer token.
type InvalidCredentials string

func (e InvalidCredentials) Error() string { return "error: invalid credentials: " + string(e) }

// IsInvalidCredentials implements the IsInvalidCredentials interface.
func (e InvalidCredentials) IsInvalidCredentials() {}

// PermissionDenied is the error to use when an authenticated principal
// lacks the rights for an operation.
type PermissionDenied string

func (e PermissionDenied) Error() string { return "error: permission denied: " + string(e) }

// IsPermissionDenied implements the IsPermissionDenied interface.
func (e PermissionDenied) IsPermissionDenied() {}

// InternalError is the error to use for unexpected backend failures.
type InternalError string

func (e InternalError) Error() string { return "error: internal error: " + string(e) }

// IsInternalError implements the IsInternalError interface.
func (e InternalError) IsInternalError() {}

// IsNotFound is the interface to implement
// to specify that a resource is not found.
type IsNotFound interface {
	IsNotFound()
}

// IsUnparsable is the interface to implement
// to specify that a request could not be parsed.
type IsUnparsable interface {
	IsUnparsable()
}

// IsInvalidMetaData is the interface to implement
// to specify that metadata violates a constraint.
type IsInvalidMetaData interface {
	IsInvalidMetaData()
}

// IsDeprecatedFormatVersion is the interface to implement
// to specify that the data format version is no longer accepted.
type IsDeprecatedFormatVersion interface {
	IsDeprecatedFormatVersion()
}

// IsUnknownFormatVersion is the interface to implement
// to specify that the data format version is unknown.
type IsUnknownFormatVersion interface {
	IsUnknownFormatVersion()
}

// IsPayloadTooLarge is the interface to implement
// to specify that an upload exceeds the payload limit.
type IsPayloadTooLarge interface {
	IsPayloadTooLarge()
}

// IsTooFewLocations is the interface to implement
// to specify that a measurement has too few locations.
type IsTooFewLocations interface {
	IsTooFewLocations()
}

// IsSkipUpload is the interface to implement
// to specify that an upload should be skipped.
type IsSkipUpload interface {
	IsSkipUpload()
}

// IsSessionExpired is the interface to implement
// to specify that an upload session is gone.
type IsSessionExpired interface {
	IsSessionExpired()
}

// IsUnexpectedContentRange is the interface to implement
// to specify that a chunk offset does not match the server state.
type IsUnexpectedContentRange interface {
	IsUnexpectedContentRange()
}

// IsConflict is the interface to implement
// to specify that a resource already exists.
type IsConflict interface {
	IsConflict()
}

// IsContentRangeMismatch is the interface to implement
// to specify that the final chunk size does not match the declared total.
type IsContentRangeMismatch interface {
	IsContentRangeMismatch()
}

// IsInvalidCredentials is the interface to implement
// to specify that credentials were wrong.
type IsInvalidCredentials interface {
	IsInvalidCredentials()
}

// IsPermissionDenied is the interface to implement
// to specify that an action is forbidden.
type IsPermissionDenied interface {
	IsPermissionDenied()
}

// IsInternalError is the interface to implement
// to specify that something broke on the server side.
type IsInternalError interface {
	IsInternalError()
}
