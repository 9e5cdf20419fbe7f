package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RequeueJobsMessage]          = (*RequeueJobsCommand)(nil)
	_ gocmd.Commander[RotateProviderSecretMessage] = (*RotateProviderSecretCommand)(nil)
	_ gocmd.Commander[FlushBatchMessage]           = (*FlushBatchCommand)(nil)
)
