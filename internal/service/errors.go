package service

import (
	"fmt"
)

type ErrInvalidPath struct {
	error
}

func NewErrInvalidPath(path string, reason string) *ErrInvalidPath {
	return &ErrInvalidPath{fmt.Errorf("invalid path %q: %s", path, reason)}
}

type ErrPathOutsideRoot struct {
	error
}

func NewErrPathOutsideRoot(path string) *ErrPathOutsideRoot {
	return &ErrPathOutsideRoot{fmt.Errorf("path %q is outside the allowed root", path)}
}

type ErrPathNotFound struct {
	error
}

func NewErrPathNotFound(path string) *ErrPathNotFound {
	return &ErrPathNotFound{fmt.Errorf("path %q not found", path)}
}

type ErrNotRegularFile struct {
	error
}

func NewErrNotRegularFile(path string) *ErrNotRegularFile {
	return &ErrNotRegularFile{fmt.Errorf("path %q is not a regular file", path)}
}

type ErrEmptyFile struct {
	error
}

func NewErrEmptyFile(path string) *ErrEmptyFile {
	return &ErrEmptyFile{fmt.Errorf("file %q is empty", path)}
}
