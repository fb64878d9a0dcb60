package clienterrors

const (
	clientPrefix = "CLI"
	clientTitle  = "Illegal Client State"
	queryPrefix  = "QRY"
	queryTitle   = "Query Error"
)

var (
	ClientClosed                = newMessage(clientPrefix, 1, clientTitle, "The client has been closed and no further operation is allowed.")
	SessionClosed               = newMessage(clientPrefix, 2, clientTitle, "The session has been closed and no further operation is allowed.")
	TransactionClosed           = newMessage(clientPrefix, 3, clientTitle, "The transaction has been closed and no further operation is allowed.")
	StreamClosed                = newMessage(clientPrefix, 4, clientTitle, "The response stream of request '%s' was closed before it completed.")
	MissingResponse             = newMessage(clientPrefix, 5, clientTitle, "The required field 'res' of request '%s' was not set.")
	UnknownRequestID            = newMessage(clientPrefix, 6, clientTitle, "Received a response with unknown request id '%s'.")
	UnknownStreamState          = newMessage(clientPrefix, 7, clientTitle, "Stream state '%d' of request '%s' was not recognised.")
	NonPositiveBatchSize        = newMessage(clientPrefix, 8, clientTitle, "Batch size cannot be less than 1, was: '%d'.")
	MissingDBName               = newMessage(clientPrefix, 9, clientTitle, "Database name cannot be empty.")
	UnrecognisedSessionType     = newMessage(clientPrefix, 10, clientTitle, "Session type '%d' was not recognised.")
	UnrecognisedTransactionType = newMessage(clientPrefix, 11, clientTitle, "Transaction type '%d' was not recognised.")
	UnexpectedResponse          = newMessage(clientPrefix, 12, clientTitle, "Received an unexpected '%s' response for request '%s'.")
	ConnectionFailed            = newMessage(clientPrefix, 13, clientTitle, "Unable to connect to the server at '%s'.")
	DatabaseDoesNotExist        = newMessage(clientPrefix, 14, clientTitle, "The database '%s' does not exist.")

	MissingAnswer = newMessage(queryPrefix, 1, queryTitle, "The required field 'answer' of request '%s' was not set.")
)
