package httpapi

import "github.com/pkg/errors"

var errTooFewPoints = errors.New("httpapi: fewer than 3 points in request")
