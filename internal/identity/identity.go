// Package identity derives the stable identity of a binding: the composite
// key used to decide whether two snapshot writes refer to the same binding.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Key prefixes, in preference order.
const (
	PrefixTableName = "tableName:"
	PrefixLogicalID = "logicalId:"
	PrefixPath      = "path:"
)

// ErrIdentityResolution is matched by every error returned from Resolve.
var ErrIdentityResolution = errors.New("identity resolution failed")

// StableIdentity is the composite identity of a binding. It is compared via
// MatchKey and never used as a primary key elsewhere.
type StableIdentity struct {
	AppID             string `json:"appId"`
	StackName         string `json:"stackName"`
	DatastoreType     string `json:"datastoreType"`
	EntityName        string `json:"entityName"`
	StableResourceKey string `json:"stableResourceKey"`
}

// MatchKey returns appId:stackName:datastoreType:entityName:stableResourceKey.
func (id StableIdentity) MatchKey() string {
	return strings.Join([]string{
		id.AppID,
		id.StackName,
		id.DatastoreType,
		id.EntityName,
		id.StableResourceKey,
	}, ":")
}

// Valid reports whether every component of the identity is populated.
func (id StableIdentity) Valid() bool {
	return id.AppID != "" && id.StackName != "" && id.DatastoreType != "" &&
		id.EntityName != "" && id.StableResourceKey != ""
}

// Source carries the candidate identifiers of a data store resource.
type Source struct {
	// PhysicalName is the resource's physical name (for DynamoDB, the table
	// name).
	PhysicalName Value
	// LogicalID is the identifier assigned by the provisioning configuration.
	LogicalID Value
	// Path is the resource's structural address. Always concrete.
	Path string
}

// Error reports a failure to derive a stable resource key.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: %s", e.Reason)
}

func (e *Error) Is(target error) bool { return target == ErrIdentityResolution }

// ResolveKey picks the best available stable resource key for src. The
// first resolved candidate wins: physical name, then logical id, then path.
func ResolveKey(src Source) (string, error) {
	if name, ok := src.PhysicalName.Get(); ok {
		return PrefixTableName + name, nil
	}
	if id, ok := src.LogicalID.Get(); ok {
		return PrefixLogicalID + id, nil
	}
	if strings.TrimSpace(src.Path) == "" {
		return "", &Error{Reason: "resource has no physical name, logical id or path"}
	}
	return PrefixPath + src.Path, nil
}

// Resolve builds the full StableIdentity for a binding.
func Resolve(appID, stackName, datastoreType, entityName string, src Source) (StableIdentity, error) {
	key, err := ResolveKey(src)
	if err != nil {
		return StableIdentity{}, err
	}
	id := StableIdentity{
		AppID:             appID,
		StackName:         stackName,
		DatastoreType:     datastoreType,
		EntityName:        entityName,
		StableResourceKey: key,
	}
	if !id.Valid() {
		return StableIdentity{}, &Error{Reason: fmt.Sprintf("incomplete identity %q", id.MatchKey())}
	}
	return id, nil
}
