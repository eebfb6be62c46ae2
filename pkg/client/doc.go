// Package client is the CertGuard Go SDK.
//
// It covers the whole certificate lifecycle exposed by a CertGuard server:
// logging in with a role, issuing and previewing certificates, verifying
// them, and the administrative ledger, blacklist and dashboard views.
//
// # Verifying a certificate (public)
//
// Verification needs no session:
//
//	c, _ := client.New("http://localhost:8080")
//	v, err := c.Verify(ctx, client.VerifyRequest{
//	    QRDataURI:       qrPayload,
//	    DocumentDataURI: scannedImage, // optional, enables the watermark check
//	})
//	fmt.Println(v.Status, v.Reason)
//
// An Invalid certificate is a Verdict, not an error. Errors mean the server
// could not reach a verdict.
//
// # Issuing a certificate
//
// Issuance requires an Institution or Admin session:
//
//	c, _ := client.New("http://localhost:8080")
//	if _, err := c.Login(ctx, "mit@edu", "password123", "Institution"); err != nil {
//	    log.Fatal(err)
//	}
//	cert, err := c.Issue(ctx, client.IssueRequest{
//	    Fields: client.Fields{
//	        ID: "CERT-1001", StudentName: "Ada Lovelace", Course: "BTech CS",
//	        IssuingInstitution: "IIT Bombay", Grade: "A", RollNumber: "R-17", Year: 2024,
//	    },
//	    ImageDataURI: renderedCertificate, // optional, returned watermarked
//	})
//
// # Sessions
//
// The CLI stores the session token with SaveToken; programs can reuse it:
//
//	c, err := client.NewFromSessionDir(baseURL, os.ExpandEnv("$HOME/.certguard"))
//
// # Errors
//
// Non-2xx responses are returned as *APIError carrying the status code and
// the server's error message:
//
//	if client.IsStatus(err, http.StatusConflict) { ... }
package client
