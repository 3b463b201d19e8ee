package main

import (
	dErrors "medisupply/pkg/domain-errors"
)

// Exit codes let schedulers tell data problems from infrastructure ones.
const (
	exitOK                   = 0
	exitFailure              = 1
	exitUndefinedGoal        = 2
	exitDuplicateResult      = 3
	exitReferentialIntegrity = 4
	exitNotFound             = 5
	exitValidation           = 6
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch dErrors.GetCode(err) {
	case dErrors.CodeUndefinedGoal:
		return exitUndefinedGoal
	case dErrors.CodeDuplicateComplianceResult:
		return exitDuplicateResult
	case dErrors.CodeReferentialIntegrity:
		return exitReferentialIntegrity
	case dErrors.CodeNotFound:
		return exitNotFound
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return exitValidation
	default:
		return exitFailure
	}
}
