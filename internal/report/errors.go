package report

import "errors"

var (
	ErrReportNotFound    = errors.New("report not found")
	ErrTemplateNotFound  = errors.New("report template not found")
	ErrInvalidTransition = errors.New("invalid report status transition")
	ErrReportLocked      = errors.New("report is no longer editable")
	ErrNotOwner          = errors.New("report belongs to another user")
	ErrInvalidRating     = errors.New("rating out of range")
)
