package detect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
)

// AWSConfig selects the region and credentials for Comprehend.
type AWSConfig struct {
	// Region is the AWS region. When empty and IdentityPoolID is set, the
	// region prefix of the pool id is used.
	Region string

	// Profile is a shared config profile name.
	Profile string

	// IdentityPoolID enables unauthenticated Cognito credentials.
	IdentityPoolID string

	// Endpoint overrides the Comprehend endpoint URL.
	Endpoint string

	// AccessKeyID, SecretAccessKey and SessionToken are static credentials.
	// They take precedence over the profile and default chain but not over
	// IdentityPoolID.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// region returns the effective region.
func (c AWSConfig) region() string {
	if c.Region != "" {
		return c.Region
	}
	if i := strings.IndexByte(c.IdentityPoolID, ':'); i > 0 {
		return c.IdentityPoolID[:i]
	}
	return ""
}

// CognitoAPI is the subset of the Cognito Identity client used to obtain
// unauthenticated credentials. *cognitoidentity.Client satisfies it.
type CognitoAPI interface {
	GetId(ctx context.Context, in *cognitoidentity.GetIdInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, in *cognitoidentity.GetCredentialsForIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// CognitoProvider is an aws.CredentialsProvider backed by an unauthenticated
// Cognito identity. The identity id is obtained once and reused.
type CognitoProvider struct {
	api    CognitoAPI
	poolID string

	mu         sync.Mutex
	identityID string
}

// NewCognitoProvider creates a provider for the identity pool poolID.
func NewCognitoProvider(api CognitoAPI, poolID string) *CognitoProvider {
	return &CognitoProvider{api: api, poolID: poolID}
}

// Retrieve implements aws.CredentialsProvider.
func (p *CognitoProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	id, err := p.identity(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}

	out, err := p.api.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(id),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("%w: get credentials for identity: %w", ErrCredentials, err)
	}
	if out.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("%w: empty credentials", ErrCredentials)
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Source:          "CognitoUnauthenticated",
	}
	if out.Credentials.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *out.Credentials.Expiration
	}
	return creds, nil
}

// identity returns the cached identity id, calling GetId the first time.
func (p *CognitoProvider) identity(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identityID != "" {
		return p.identityID, nil
	}

	out, err := p.api.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(p.poolID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get identity: %w", ErrCredentials, err)
	}
	if aws.ToString(out.IdentityId) == "" {
		return "", fmt.Errorf("%w: empty identity id", ErrCredentials)
	}
	p.identityID = aws.ToString(out.IdentityId)
	return p.identityID, nil
}

// LoadAWSConfig resolves cfg into an aws.Config.
func LoadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	region := cfg.region()

	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}

	switch {
	case cfg.IdentityPoolID != "":
		if region == "" {
			return aws.Config{}, fmt.Errorf("%w: region is required with an identity pool", ErrAWSConfig)
		}
		cognito := cognitoidentity.New(cognitoidentity.Options{
			Region:      region,
			Credentials: aws.AnonymousCredentials{},
		})
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(NewCognitoProvider(cognito, cfg.IdentityPoolID)),
		))

	case cfg.AccessKeyID != "":
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))

	case cfg.Profile != "":
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: %w", ErrAWSConfig, err)
	}
	if awsCfg.Region == "" {
		return aws.Config{}, fmt.Errorf("%w: no region configured", ErrAWSConfig)
	}
	return awsCfg, nil
}

// NewComprehendClient creates a Comprehend client from cfg.
func NewComprehendClient(ctx context.Context, cfg AWSConfig) (*comprehend.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return comprehend.NewFromConfig(awsCfg, func(o *comprehend.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
