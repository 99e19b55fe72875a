package grpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// validateRequired checks that a string field is non-empty.
func validateRequired(value, fieldName string) error {
	if value == "" {
		return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
	}
	return nil
}

// requireStruct returns the named Struct field or an InvalidArgument error.
func requireStruct(req *structpb.Struct, fieldName string) (*structpb.Struct, error) {
	v := structField(req, fieldName)
	if v == nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
	}
	return v, nil
}
